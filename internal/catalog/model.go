// Package catalog is the read side of the product catalog. Products are owned
// by the storefront's catalog subsystem; inventory only needs reference data
// for display and existence checks.
package catalog

// ProductRef is the reference shape inventory consumes.
type ProductRef struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category,omitempty"`
	ImageRef string `json:"image_ref,omitempty"`
}

// Option is the reduced shape used by select inputs.
type Option struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}
