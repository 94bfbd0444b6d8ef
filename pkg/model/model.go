package model

import "time"

// Deployment statuses.
const (
	StatusPending      = "pending"
	StatusProvisioning = "provisioning"
	StatusReady        = "ready"
	StatusUpgrading    = "upgrading"
	StatusDeleting     = "deleting"
	StatusDeleted      = "deleted"
	StatusError        = "error"
)

// Reconcile job reasons.
const (
	ReasonCreate = "create"
	ReasonUpdate = "update"
	ReasonDelete = "delete"
	ReasonDrift  = "drift"
	ReasonRetry  = "retry"
)

// Reconcile job statuses.
const (
	JobQueued  = "queued"
	JobRunning = "running"
	JobDone    = "done"
	JobFailed  = "failed"
)

type User struct {
	ID        int64      `db:"id" json:"id"`
	Email     string     `db:"email" json:"email"`
	IsAdmin   bool       `db:"is_admin" json:"is_admin"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	DeletedAt *time.Time `db:"deleted_at" json:"deleted_at,omitempty"`
}

type Product struct {
	ID                  int64      `db:"id" json:"id"`
	Name                string     `db:"name" json:"name"`
	Description         *string    `db:"description" json:"description,omitempty"`
	CanonicalTemplateID *int64     `db:"canonical_template_id" json:"canonical_template_id,omitempty"`
	CreatedAt           time.Time  `db:"created_at" json:"created_at"`
	DeletedAt           *time.Time `db:"deleted_at" json:"deleted_at,omitempty"`
}

// Template is an immutable versioned reference to a Helm chart artifact
// plus its values schema. Templates within a product are ordered by id;
// a larger id is a newer version.
type Template struct {
	ID               int64      `db:"id" json:"id"`
	ProductID        int64      `db:"product_id" json:"product_id"`
	ChartRef         string     `db:"chart_ref" json:"chart_ref"`
	ChartVersion     string     `db:"chart_version" json:"chart_version"`
	ChartDigest      *string    `db:"chart_digest" json:"chart_digest,omitempty"`
	VersionLabel     *string    `db:"version_label" json:"version_label,omitempty"`
	DefaultValues    JSONValue  `db:"default_values_json" json:"default_values_json,omitempty"`
	ValuesSchema     JSONValue  `db:"values_schema_json" json:"values_schema_json,omitempty"`
	Capabilities     JSONValue  `db:"capabilities_json" json:"capabilities_json,omitempty"`
	HealthTimeoutSec *int       `db:"health_timeout_sec" json:"health_timeout_sec,omitempty"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	DeletedAt        *time.Time `db:"deleted_at" json:"deleted_at,omitempty"`
}

type Deployment struct {
	ID                int64      `db:"id" json:"id"`
	UserID            int64      `db:"user_id" json:"user_id"`
	Domainname        string     `db:"domainname" json:"domainname"`
	DeploymentUID     string     `db:"deployment_uid" json:"deployment_uid"`
	DesiredTemplateID int64      `db:"desired_template_id" json:"desired_template_id"`
	AppliedTemplateID *int64     `db:"applied_template_id" json:"applied_template_id,omitempty"`
	UserValues        JSONValue  `db:"user_values_json" json:"user_values_json,omitempty"`
	Status            string     `db:"status" json:"status"`
	Generation        int64      `db:"generation" json:"generation"`
	LastError         *string    `db:"last_error" json:"last_error,omitempty"`
	LastReconcileAt   *time.Time `db:"last_reconcile_at" json:"last_reconcile_at,omitempty"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	DeletedAt         *time.Time `db:"deleted_at" json:"deleted_at,omitempty"`
}

type ReconcileJob struct {
	ID           int64      `db:"id" json:"id"`
	DeploymentID int64      `db:"deployment_id" json:"deployment_id"`
	Reason       string     `db:"reason" json:"reason"`
	Status       string     `db:"status" json:"status"`
	RunAfter     time.Time  `db:"run_after" json:"run_after"`
	Attempt      int        `db:"attempt" json:"attempt"`
	LockedBy     *string    `db:"locked_by" json:"locked_by,omitempty"`
	LockedAt     *time.Time `db:"locked_at" json:"locked_at,omitempty"`
	LastError    *string    `db:"last_error" json:"last_error,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// IsOpen reports whether the job blocks further jobs for its deployment.
func (j ReconcileJob) IsOpen() bool {
	return j.Status == JobQueued || j.Status == JobRunning
}

// DeploymentDetail is a deployment with its relationships eagerly loaded,
// as required by the reconciler and the read API.
type DeploymentDetail struct {
	Deployment      Deployment `json:"deployment"`
	User            *User      `json:"user,omitempty"`
	DesiredTemplate *Template  `json:"desired_template,omitempty"`
	DesiredProduct  *Product   `json:"desired_product,omitempty"`
	AppliedTemplate *Template  `json:"applied_template,omitempty"`
}
