package service

import (
	"context"

	"github.com/Masterminds/semver/v3"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/chartfarm/chartfarm/pkg/app"
	"github.com/chartfarm/chartfarm/pkg/model"
	"github.com/chartfarm/chartfarm/pkg/store"
	"github.com/chartfarm/chartfarm/pkg/values"
)

// TemplateCreate is the boundary payload for registering a new template
// version under a product.
type TemplateCreate struct {
	ProductID        int64                  `json:"product_id"`
	ChartRef         string                 `json:"chart_ref"`
	ChartVersion     string                 `json:"chart_version"`
	ChartDigest      *string                `json:"chart_digest,omitempty"`
	VersionLabel     *string                `json:"version_label,omitempty"`
	DefaultValues    map[string]interface{} `json:"default_values_json,omitempty"`
	ValuesSchema     map[string]interface{} `json:"values_schema_json,omitempty"`
	Capabilities     map[string]interface{} `json:"capabilities_json,omitempty"`
	HealthTimeoutSec *int                   `json:"health_timeout_sec,omitempty"`
}

type Templates struct {
	store  *store.Store
	logger *zap.SugaredLogger
}

func NewTemplates(s *store.Store, logger *zap.SugaredLogger) *Templates {
	return &Templates{store: s, logger: logger}
}

// Create registers an immutable template version. The default values must
// already satisfy the supplied schema, so a fresh deployment without user
// overrides is guaranteed to validate.
func (t *Templates) Create(ctx context.Context, payload TemplateCreate) (*model.Template, error) {
	if payload.ChartRef == "" || payload.ChartVersion == "" {
		return nil, app.NewIntegrity("chart_ref and chart_version are required")
	}
	// helm rejects non-semver chart versions at install time, so catch
	// them here before the template becomes immutable.
	if _, err := semver.NewVersion(payload.ChartVersion); err != nil {
		return nil, app.NewIntegrity("chart_version %q is not a valid semantic version", payload.ChartVersion)
	}
	if payload.ValuesSchema != nil {
		merged := values.MergeScoped(payload.DefaultValues, nil, nil)
		if err := values.ValidateMergedValues(merged, payload.ValuesSchema); err != nil {
			return nil, err
		}
	}

	template := &model.Template{
		ProductID:        payload.ProductID,
		ChartRef:         payload.ChartRef,
		ChartVersion:     payload.ChartVersion,
		ChartDigest:      payload.ChartDigest,
		VersionLabel:     payload.VersionLabel,
		HealthTimeoutSec: payload.HealthTimeoutSec,
	}
	if payload.DefaultValues != nil {
		template.DefaultValues = model.NewJSON(payload.DefaultValues)
	}
	if payload.ValuesSchema != nil {
		template.ValuesSchema = model.NewJSON(payload.ValuesSchema)
	}
	if payload.Capabilities != nil {
		template.Capabilities = model.NewJSON(payload.Capabilities)
	}

	err := t.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := t.store.GetProduct(ctx, tx, payload.ProductID); err != nil {
			return err
		}
		return t.store.CreateTemplate(ctx, tx, template)
	})
	if err != nil {
		return nil, err
	}
	t.logger.Infof("Created template id=%d product=%d chart=%s version=%s",
		template.ID, template.ProductID, template.ChartRef, template.ChartVersion)
	return template, nil
}

func (t *Templates) Get(ctx context.Context, id int64) (*model.Template, error) {
	return t.store.GetTemplate(ctx, t.store.DB(), id)
}

func (t *Templates) ListByProduct(ctx context.Context, productID int64) ([]model.Template, error) {
	return t.store.ListTemplates(ctx, t.store.DB(), productID)
}

func (t *Templates) Delete(ctx context.Context, id int64) error {
	return t.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		return t.store.SoftDeleteTemplate(ctx, tx, id)
	})
}
