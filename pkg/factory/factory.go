// Package factory builds workflow executions out of a workflow template, a
// dataset and the dataset's processing history.
package factory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"

	"github.com/mnemion/mnemion/pkg/chain"
	"github.com/mnemion/mnemion/pkg/models"
	"github.com/mnemion/mnemion/pkg/persistence"
)

const defaultLinkCheckingSampleSize = 1000

// Config carries the environment-level plugin settings the factory stamps
// onto new executions.
type Config struct {
	Validation models.ValidationProperties `validate:"required"`

	// UseAlternativeIndexingEnvironment routes preview and publish
	// indexing to the secondary target environment.
	UseAlternativeIndexingEnvironment bool

	// LinkCheckingSampleSize overrides the default sample size when
	// positive.
	LinkCheckingSampleSize int
}

// Factory creates un-persisted executions from templates.
type Factory struct {
	xslts    persistence.XsltRepository
	resolver *chain.Resolver
	config   Config
	validate *validator.Validate
	logger   *slog.Logger
}

// NewFactory validates the configuration and creates a factory.
func NewFactory(xslts persistence.XsltRepository, resolver *chain.Resolver, config Config, logger *slog.Logger) (*Factory, error) {
	if config.LinkCheckingSampleSize <= 0 {
		config.LinkCheckingSampleSize = defaultLinkCheckingSampleSize
	}

	validate := validator.New()

	err := validate.Struct(config.Validation)
	if err != nil {
		return nil, fmt.Errorf("invalid validation properties: %w", err)
	}

	return &Factory{
		xslts:    xslts,
		resolver: resolver,
		config:   config,
		validate: validate,
		logger:   logger.With("module", "workflow_factory"),
	}, nil
}

// CreateExecution builds an un-persisted INQUEUE execution: the template's
// enabled plugins in order, each configured for its type, with the first
// plugin pointed at the dataset's most recent eligible predecessor output.
// An explicit enforcedPredecessorType restricts that predecessor lookup.
func (f *Factory) CreateExecution(ctx context.Context, workflow *models.Workflow, dataset *models.Dataset, enforcedPredecessorType models.PluginType, priority int) (*models.WorkflowExecution, error) {
	enabled := workflow.EnabledPlugins()
	if len(enabled) == 0 {
		return nil, errors.New("workflow has no enabled plugins")
	}

	plugins := make([]*models.PluginInstance, 0, len(enabled))

	for _, metadata := range enabled {
		configured, err := f.configureMetadata(ctx, metadata, dataset)
		if err != nil {
			return nil, err
		}

		plugins = append(plugins, &models.PluginInstance{
			PluginType:     configured.PluginType,
			PluginStatus:   models.PluginStatusInqueue,
			PluginMetadata: configured,
		})
	}

	first := plugins[0]

	previous, err := f.resolver.ResolvePredecessor(ctx, dataset.ID, first.PluginType, enforcedPredecessorType)
	if err != nil {
		return nil, err
	}

	first.PreviousRevisionInformation = previous

	execution := models.NewWorkflowExecution(dataset.ID, plugins, priority)

	f.logger.InfoContext(ctx, "Created workflow execution",
		"execution_id", execution.ID,
		"dataset_id", dataset.ID,
		"workflow_id", workflow.ID,
		"plugins", len(plugins),
	)

	return execution, nil
}

// configureMetadata applies the type-specific environment configuration on
// top of the template's own settings.
func (f *Factory) configureMetadata(ctx context.Context, metadata models.PluginMetadata, dataset *models.Dataset) (models.PluginMetadata, error) {
	switch metadata.PluginType {
	case models.PluginTypeTransformation:
		xsltID, err := f.resolveXsltID(ctx, metadata, dataset)
		if err != nil {
			return metadata, err
		}

		metadata.XsltID = xsltID
		metadata.DatasetName = fmt.Sprintf("%s_%s", dataset.ID, dataset.Name)
	case models.PluginTypeValidationExternal, models.PluginTypeValidationInternal:
		metadata.SchemasZipURL = f.config.Validation.SchemasZipURL
		metadata.SchemaRootPath = f.config.Validation.SchemaRootPath
		metadata.SchematronRootPath = f.config.Validation.SchematronRootPath
	case models.PluginTypePreviewIndex, models.PluginTypePublishIndex:
		metadata.UseAlternativeIndexingEnvironment = f.config.UseAlternativeIndexingEnvironment
	case models.PluginTypeLinkChecking:
		if metadata.SampleSize <= 0 {
			metadata.SampleSize = f.config.LinkCheckingSampleSize
		}
	case models.PluginTypeOaipmhHarvest, models.PluginTypeNormalization,
		models.PluginTypeEnrichment, models.PluginTypeMediaProcess:
	}

	return metadata, nil
}

// resolveXsltID picks the dataset's own stylesheet when the template asks
// for a custom transformation, and the latest shared default otherwise.
func (f *Factory) resolveXsltID(ctx context.Context, metadata models.PluginMetadata, dataset *models.Dataset) (string, error) {
	if metadata.CustomXslt {
		if dataset.XsltID == "" {
			return "", fmt.Errorf("dataset %s has no custom stylesheet", dataset.ID)
		}

		return dataset.XsltID, nil
	}

	latest, err := f.xslts.LatestDefault(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to resolve default stylesheet: %w", err)
	}

	return latest.ID, nil
}
