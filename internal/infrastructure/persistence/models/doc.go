// Package models holds the GORM persistence models backing the sync state
// store. They carry all column tags and table mappings so the domain
// entities stay free of ORM concerns; mapper functions convert between the
// two representations at the repository boundary.
package models
