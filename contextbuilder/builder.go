package contextbuilder

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/tidwall/gjson"

	"github.com/attrengine/core/domain/attribute"
	"github.com/attrengine/core/domain/dependency"
	"github.com/attrengine/core/internal/obs/errors"
)

// Config bounds what a Builder is willing to expose to compute bodies.
type Config struct {
	NodeID             string
	MaxCustomDataBytes int64
	AllowHTTP          bool
	AllowDatabase      bool
	AllowUserContext   bool
	HTTPClient         *http.Client
}

func (c Config) withDefaults() Config {
	if c.MaxCustomDataBytes <= 0 {
		c.MaxCustomDataBytes = 64 << 10
	}
	return c
}

// Builder produces Contexts tailored to a target and a Config's
// capability policy.
type Builder struct {
	cfg Config
}

// New creates a Builder.
func New(cfg Config) *Builder {
	return &Builder{cfg: cfg.withDefaults()}
}

// Request describes the target and capabilities a single Context should be
// built around.
type Request struct {
	Target      interface{}
	TargetID    string
	TargetKind  attribute.TargetKind
	Database    DatabaseHandle
	Collection  CollectionHandle
	CurrentUser interface{}
	AuthContext interface{}

	// FieldDependencies are dotted JSON paths, typically the subset of a
	// definition's declared field dependencies, projected into CustomData
	// when Target is JSON-marshallable.
	FieldDependencies []dependency.Dependency
}

// Build produces a Context for req, enforcing the capability policy and
// projecting any declared field dependencies into CustomData.
func (b *Builder) Build(req Request) (*Context, error) {
	if req.TargetID == "" {
		return nil, errors.Empty("targetId")
	}
	if !req.TargetKind.Valid() {
		return nil, errors.InvalidTargetKind(req.TargetKind)
	}
	if b.cfg.AllowDatabase && req.Database == nil {
		return nil, errors.New(errors.KindValidation, errors.CodeValidation,
			"database handle required when AllowDatabase is enabled")
	}

	cc := &Context{
		Target:     req.Target,
		TargetID:   req.TargetID,
		TargetKind: req.TargetKind,
		Timestamp:  time.Now(),
		NodeID:     b.cfg.NodeID,
	}

	if b.cfg.AllowDatabase {
		cc.Database = req.Database
		cc.Collection = req.Collection
	}
	if b.cfg.AllowUserContext {
		cc.CurrentUser = req.CurrentUser
		cc.AuthContext = req.AuthContext
	}
	if b.cfg.AllowHTTP {
		cc.HTTPClient = b.cfg.HTTPClient
	}

	if projected, err := b.projectFields(req.Target, req.FieldDependencies); err == nil && len(projected) > 0 {
		cc.CustomData = projected
	}

	if size := customDataSize(cc.CustomData); size > b.cfg.MaxCustomDataBytes {
		return nil, errors.New(errors.KindValidation, errors.CodeValidation, "customData exceeds configured size bound").
			WithDetails("bytes", size).WithDetails("max", b.cfg.MaxCustomDataBytes)
	}

	return cc, nil
}

// projectFields marshals target to JSON and extracts each field-kind
// dependency's dotted path via gjson, rather than reflection. Dependencies
// of other kinds are skipped: they name attributes or external sources, not
// paths into the target.
func (b *Builder) projectFields(target interface{}, deps []dependency.Dependency) (map[string]interface{}, error) {
	if target == nil || len(deps) == 0 {
		return nil, nil
	}

	body, err := json.Marshal(target)
	if err != nil {
		return nil, err
	}

	projected := make(map[string]interface{})
	for _, dep := range deps {
		if dep.Kind != dependency.KindField || dep.ExternalSource == "" {
			continue
		}
		path := dep.ExternalSource
		result := gjson.GetBytes(body, path)
		if result.Exists() {
			projected[path] = result.Value()
		}
	}
	if len(projected) == 0 {
		return nil, nil
	}
	return projected, nil
}

func customDataSize(data map[string]interface{}) int64 {
	if len(data) == 0 {
		return 0
	}
	body, err := json.Marshal(data)
	if err != nil {
		return 0
	}
	return int64(len(body))
}

// BuildForUser is a convenience builder for user-targeted computations.
func (b *Builder) BuildForUser(targetID string, target interface{}, db DatabaseHandle, currentUser interface{}, deps []dependency.Dependency) (*Context, error) {
	return b.Build(Request{
		Target: target, TargetID: targetID, TargetKind: attribute.TargetUser,
		Database: db, CurrentUser: currentUser, FieldDependencies: deps,
	})
}

// BuildForDocument is a convenience builder for document-targeted
// computations.
func (b *Builder) BuildForDocument(targetID string, target interface{}, db DatabaseHandle, collection CollectionHandle, deps []dependency.Dependency) (*Context, error) {
	return b.Build(Request{
		Target: target, TargetID: targetID, TargetKind: attribute.TargetDocument,
		Database: db, Collection: collection, FieldDependencies: deps,
	})
}

// BuildForCollection is a convenience builder for collection-targeted
// computations.
func (b *Builder) BuildForCollection(collectionName string, db DatabaseHandle, collection CollectionHandle) (*Context, error) {
	return b.Build(Request{
		Target: nil, TargetID: collectionName, TargetKind: attribute.TargetCollection,
		Database: db, Collection: collection,
	})
}

// BuildForDatabase is a convenience builder for database-wide computations.
func (b *Builder) BuildForDatabase(targetID string, db DatabaseHandle) (*Context, error) {
	return b.Build(Request{
		Target: nil, TargetID: targetID, TargetKind: attribute.TargetDatabase,
		Database: db,
	})
}
