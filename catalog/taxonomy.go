package catalog

import "encoding/json"

// taxonomyVersion is the version stamped on the built-in definitions.
// Bump it whenever a payload schema changes.
const taxonomyVersion = "2025-06-01"

func schema(s string) json.RawMessage { return json.RawMessage(s) }

// Builtin returns the retail operations taxonomy. The set is closed:
// producers can only publish types registered here (or added explicitly at
// boot via Registry.Register).
func Builtin() []Definition {
	return []Definition{
		{
			Name:         "solicitacao.created",
			Description:  "A replenishment request was opened by a store.",
			AggregateKey: "solicitacaoId",
			Version:      taxonomyVersion,
			Schema: schema(`{
				"type": "object",
				"required": ["solicitacaoId", "storeId", "ean", "quantity"],
				"properties": {
					"solicitacaoId": {"type": "string"},
					"storeId":       {"type": "string"},
					"ean":           {"type": "string"},
					"quantity":      {"type": "number", "minimum": 1},
					"requesterId":   {"type": "string"}
				}
			}`),
			Example: schema(`{"solicitacaoId": "sol_42", "storeId": "st_7", "ean": "7891000100103", "quantity": 12, "requesterId": "usr_9"}`),
		},
		{
			Name:         "solicitacao.status_changed",
			Description:  "A replenishment request moved to a new status.",
			AggregateKey: "solicitacaoId",
			Version:      taxonomyVersion,
			Schema: schema(`{
				"type": "object",
				"required": ["solicitacaoId", "storeId", "oldStatus", "newStatus"],
				"properties": {
					"solicitacaoId": {"type": "string"},
					"storeId":       {"type": "string"},
					"oldStatus":     {"type": "string"},
					"newStatus":     {"type": "string"},
					"requesterId":   {"type": "string"}
				}
			}`),
		},
		{
			Name:         "inventory.completed",
			Description:  "An inventory count finished for a store.",
			AggregateKey: "countId",
			Version:      taxonomyVersion,
			Schema: schema(`{
				"type": "object",
				"required": ["countId", "storeId", "itemsCounted"],
				"properties": {
					"countId":      {"type": "string"},
					"storeId":      {"type": "string"},
					"itemsCounted": {"type": "integer", "minimum": 0},
					"divergences":  {"type": "integer", "minimum": 0}
				}
			}`),
		},
		{
			Name:         "product.created",
			Description:  "A product entered the catalog.",
			AggregateKey: "ean",
			Version:      taxonomyVersion,
			Schema:       productSchema,
		},
		{
			Name:         "product.updated",
			Description:  "Product master data changed.",
			AggregateKey: "ean",
			Version:      taxonomyVersion,
			Schema:       productSchema,
		},
		{
			Name:         "product.deleted",
			Description:  "A product was removed from the catalog.",
			AggregateKey: "ean",
			Version:      taxonomyVersion,
			Schema: schema(`{
				"type": "object",
				"required": ["ean"],
				"properties": {"ean": {"type": "string"}}
			}`),
		},
		{
			Name:         "product.price_changed",
			Description:  "A product price changed.",
			AggregateKey: "ean",
			Version:      taxonomyVersion,
			Schema: schema(`{
				"type": "object",
				"required": ["ean", "oldPrice", "newPrice"],
				"properties": {
					"ean":      {"type": "string"},
					"oldPrice": {"type": "number", "minimum": 0},
					"newPrice": {"type": "number", "minimum": 0}
				}
			}`),
			Example: schema(`{"ean": "7891000100103", "oldPrice": 10.00, "newPrice": 12.00}`),
		},
		{
			Name:         "user.login",
			Description:  "A user signed in.",
			AggregateKey: "userId",
			Version:      taxonomyVersion,
			Schema:       userSchema,
		},
		{
			Name:         "user.logout",
			Description:  "A user signed out.",
			AggregateKey: "userId",
			Version:      taxonomyVersion,
			Schema:       userSchema,
		},
		{
			Name:         "user.updated",
			Description:  "User profile or role data changed.",
			AggregateKey: "userId",
			Version:      taxonomyVersion,
			Schema:       userSchema,
		},
		{
			Name:         "store.updated",
			Description:  "Store registration data changed.",
			AggregateKey: "storeId",
			Version:      taxonomyVersion,
			Schema: schema(`{
				"type": "object",
				"required": ["storeId"],
				"properties": {"storeId": {"type": "string"}}
			}`),
		},
		{
			Name:         "system.error",
			Description:  "A component reported an operational error.",
			Aggregate:    "system",
			AggregateKey: "component",
			Version:      taxonomyVersion,
			Schema: schema(`{
				"type": "object",
				"required": ["severity", "message"],
				"properties": {
					"severity":  {"type": "string", "enum": ["info", "warning", "critical"]},
					"message":   {"type": "string"},
					"component": {"type": "string"}
				}
			}`),
		},
	}
}

var productSchema = schema(`{
	"type": "object",
	"required": ["ean"],
	"properties": {
		"ean":         {"type": "string"},
		"description": {"type": "string"},
		"price":       {"type": "number", "minimum": 0}
	}
}`)

var userSchema = schema(`{
	"type": "object",
	"required": ["userId"],
	"properties": {
		"userId": {"type": "string"},
		"name":   {"type": "string"},
		"role":   {"type": "string"}
	}
}`)
