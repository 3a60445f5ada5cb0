package models

import "time"

// Dataset is the engine-side view of a cultural-heritage dataset. Dataset
// CRUD lives outside the engine; only the fields the factory and driver
// need are modelled here.
type Dataset struct {
	ID        string    `json:"id"   validate:"required"`
	Name      string    `json:"name" validate:"required"`
	XsltID    string    `json:"xsltId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// DatasetXslt is a stored XSLT stylesheet used by transformation plugins.
// Default stylesheets are shared across datasets; custom ones belong to a
// single dataset.
type DatasetXslt struct {
	ID        string    `json:"id"`
	DatasetID string    `json:"datasetId,omitempty"`
	Xslt      string    `json:"xslt"`
	CreatedAt time.Time `json:"createdAt"`
}
