// Streetwatch - Community Activity Reporting and Moderation
// Copyright 2026 Streetwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streetwatch/streetwatch

// Package authz decides who may do what, with Casbin RBAC. Two roles
// exist: verifier, who moderates pending reports, and admin, who
// additionally runs maintenance operations. The model and default
// policy ship embedded; deployments can point at policy files to define
// their own roles.
package authz

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	fileadapter "github.com/casbin/casbin/v2/persist/file-adapter"
)

//go:embed model.conf
var embeddedModel string

//go:embed policy.csv
var embeddedPolicy string

// Capability objects and actions used in the policy.
const (
	ObjectReports     = "reports"
	ObjectAudit       = "audit"
	ObjectMaintenance = "maintenance"

	ActionModerate = "moderate"
	ActionRead     = "read"
	ActionRun      = "run"
)

// EnforcerConfig selects the policy source.
type EnforcerConfig struct {
	// ModelPath overrides the embedded model when the file exists.
	ModelPath string
	// PolicyPath overrides the embedded policy when the file exists.
	PolicyPath string
	// ReloadInterval enables periodic policy reload for file-backed
	// policies. Zero disables reload.
	ReloadInterval time.Duration
}

// Enforcer wraps the Casbin enforcer behind the capability vocabulary
// the handlers use.
type Enforcer struct {
	enforcer *casbin.SyncedEnforcer
	filed    bool
}

// NewEnforcer builds the enforcer from config, falling back to the
// embedded model and policy.
func NewEnforcer(cfg EnforcerConfig) (*Enforcer, error) {
	var m model.Model
	var err error
	if cfg.ModelPath != "" && fileExists(cfg.ModelPath) {
		m, err = model.NewModelFromFile(cfg.ModelPath)
	} else {
		m, err = model.NewModelFromString(embeddedModel)
	}
	if err != nil {
		return nil, fmt.Errorf("load authorization model: %w", err)
	}

	var enf *casbin.SyncedEnforcer
	filed := cfg.PolicyPath != "" && fileExists(cfg.PolicyPath)
	if filed {
		enf, err = casbin.NewSyncedEnforcer(m, fileadapter.NewAdapter(cfg.PolicyPath))
	} else {
		enf, err = casbin.NewSyncedEnforcer(m)
		if err == nil {
			err = loadEmbeddedPolicy(enf, embeddedPolicy)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("create authorization enforcer: %w", err)
	}

	if filed && cfg.ReloadInterval > 0 {
		enf.StartAutoLoadPolicy(cfg.ReloadInterval)
	}

	return &Enforcer{enforcer: enf, filed: filed}, nil
}

func loadEmbeddedPolicy(enf *casbin.SyncedEnforcer, policy string) error {
	for _, line := range strings.Split(policy, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.Split(line, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		switch {
		case parts[0] == "p" && len(parts) >= 4:
			if _, err := enf.AddPolicy(parts[1], parts[2], parts[3]); err != nil {
				return fmt.Errorf("add policy %v: %w", parts[1:], err)
			}
		case parts[0] == "g" && len(parts) >= 3:
			if _, err := enf.AddGroupingPolicy(parts[1], parts[2]); err != nil {
				return fmt.Errorf("add role inheritance %v: %w", parts[1:], err)
			}
		}
	}
	return nil
}

// Allowed reports whether the subject, directly or through any of its
// roles, may perform action on object.
func (e *Enforcer) Allowed(subject string, roles []string, object, action string) (bool, error) {
	if ok, err := e.enforcer.Enforce(subject, object, action); err != nil {
		return false, fmt.Errorf("enforce: %w", err)
	} else if ok {
		return true, nil
	}
	for _, role := range roles {
		if ok, err := e.enforcer.Enforce(role, object, action); err != nil {
			return false, fmt.Errorf("enforce: %w", err)
		} else if ok {
			return true, nil
		}
	}
	return false, nil
}

// AddRoleForUser grants a role to a subject at runtime.
func (e *Enforcer) AddRoleForUser(user, role string) error {
	if _, err := e.enforcer.AddGroupingPolicy(user, role); err != nil {
		return fmt.Errorf("add role: %w", err)
	}
	return nil
}

// GetRolesForUser lists the subject's assigned roles.
func (e *Enforcer) GetRolesForUser(user string) ([]string, error) {
	return e.enforcer.GetRolesForUser(user)
}

// Close stops background policy reloading.
func (e *Enforcer) Close() {
	if e.filed {
		e.enforcer.StopAutoLoadPolicy()
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
