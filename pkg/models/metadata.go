package models

// PluginMetadata is the type-specific configuration of a plugin. It is a
// tagged variant: PluginType selects which of the optional field groups is
// meaningful, and the plugin driver dispatches on that tag when composing
// the external task.
type PluginMetadata struct {
	PluginType PluginType `json:"pluginType"         validate:"required"`
	Enabled    bool       `json:"enabled"`

	// OAI-PMH harvest
	HarvestURL     string `json:"harvestUrl,omitempty"`
	MetadataFormat string `json:"metadataFormat,omitempty"`
	SetSpec        string `json:"setSpec,omitempty"`

	// Transformation
	XsltID      string `json:"xsltId,omitempty"`
	CustomXslt  bool   `json:"customXslt,omitempty"`
	DatasetName string `json:"datasetName,omitempty"`

	// Validation (external and internal)
	SchemasZipURL      string `json:"urlOfSchemasZip,omitempty"`
	SchemaRootPath     string `json:"schemaRootPath,omitempty"`
	SchematronRootPath string `json:"schematronRootPath,omitempty"`

	// Preview / publish indexing
	UseAlternativeIndexingEnvironment bool `json:"useAlternativeIndexingEnvironment,omitempty"`

	// Link checking
	SampleSize int `json:"sampleSize,omitempty"`
}

// ValidationProperties groups the schema locations handed to validation
// plugins at execution-creation time.
type ValidationProperties struct {
	SchemasZipURL      string `validate:"required,url"`
	SchemaRootPath     string `validate:"required"`
	SchematronRootPath string `validate:"required"`
}
