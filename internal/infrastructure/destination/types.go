package destination

import "encoding/json"

// graphqlRequest is the POST body for every storefront API call.
type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

// graphqlError is one entry in the top-level errors array.
type graphqlError struct {
	Message    string `json:"message"`
	Extensions struct {
		Code string `json:"code"`
	} `json:"extensions"`
}

// graphqlResponse is the envelope shared by all storefront responses.
type graphqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphqlError  `json:"errors"`
}

// userErrorPayload is the field-level rejection list inside a mutation
// payload.
type userErrorPayload struct {
	Field   []string `json:"field"`
	Message string   `json:"message"`
}

// productPayload is the product object returned by product mutations and
// queries.
type productPayload struct {
	ID       string `json:"id"`
	Handle   string `json:"handle"`
	Variants struct {
		Nodes []struct {
			ID            string `json:"id"`
			InventoryItem struct {
				ID string `json:"id"`
			} `json:"inventoryItem"`
		} `json:"nodes"`
	} `json:"variants"`
}

type productCreateData struct {
	ProductCreate struct {
		Product    *productPayload    `json:"product"`
		UserErrors []userErrorPayload `json:"userErrors"`
	} `json:"productCreate"`
}

type productUpdateData struct {
	ProductUpdate struct {
		Product    *productPayload    `json:"product"`
		UserErrors []userErrorPayload `json:"userErrors"`
	} `json:"productUpdate"`
}

type variantUpdateData struct {
	ProductVariantUpdate struct {
		UserErrors []userErrorPayload `json:"userErrors"`
	} `json:"productVariantUpdate"`
}

type inventorySetData struct {
	InventorySetQuantities struct {
		UserErrors []userErrorPayload `json:"userErrors"`
	} `json:"inventorySetQuantities"`
}

type mediaCreateData struct {
	ProductCreateMedia struct {
		Media []struct {
			ID string `json:"id"`
		} `json:"media"`
		MediaUserErrors []userErrorPayload `json:"mediaUserErrors"`
	} `json:"productCreateMedia"`
}

type publishData struct {
	PublishablePublish struct {
		UserErrors []userErrorPayload `json:"userErrors"`
	} `json:"publishablePublish"`
}

type productSearchData struct {
	Products struct {
		Nodes []productPayload `json:"nodes"`
	} `json:"products"`
}

type orderUpdateData struct {
	OrderUpdate struct {
		UserErrors []userErrorPayload `json:"userErrors"`
	} `json:"orderUpdate"`
	MetafieldsSet struct {
		UserErrors []userErrorPayload `json:"userErrors"`
	} `json:"metafieldsSet"`
}
