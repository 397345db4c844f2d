package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type User struct {
	ID             uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	Email          string     `gorm:"size:255;uniqueIndex;not null" json:"email"`
	HashedPassword string     `gorm:"size:255;not null" json:"-"`
	Role           string     `gorm:"size:50;not null;default:user" json:"role"`
	IsActive       bool       `gorm:"not null;default:true" json:"is_active"`
	IsVerified     bool       `gorm:"not null;default:false" json:"is_verified"`
	FirstName      *string    `gorm:"size:100" json:"first_name,omitempty"`
	LastName       *string    `gorm:"size:100" json:"last_name,omitempty"`
	LastLogin      *time.Time `json:"last_login,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// FullName is used as the greeting name in outgoing emails.
func (u User) FullName() string {
	switch {
	case u.FirstName != nil && u.LastName != nil:
		return *u.FirstName + " " + *u.LastName
	case u.FirstName != nil:
		return *u.FirstName
	default:
		return ""
	}
}

// Project is a registered monitoring project with its own database
// connection. Stored db credentials are never serialized.
type Project struct {
	ID                     uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Name                   string    `gorm:"size:255;not null" json:"name"`
	DBHost                 string    `gorm:"size:255;not null" json:"db_host"`
	DBPort                 int       `gorm:"not null;default:5432" json:"db_port"`
	DBName                 string    `gorm:"size:255;not null" json:"db_name"`
	DBUser                 string    `gorm:"size:255;not null" json:"db_user"`
	DBPassword             string    `gorm:"size:255;not null" json:"-"`
	ConnectionType         string    `gorm:"size:50;not null;default:direct" json:"connection_type"`
	IsActive               bool      `gorm:"not null;default:true" json:"is_active"`
	ConnectionStatus       string    `gorm:"size:50;not null;default:unknown" json:"connection_status"`
	Description            *string   `json:"description,omitempty"`
	Metadata               JSONB     `gorm:"type:jsonb" json:"metadata,omitempty"`
	DisplayOrder           int       `gorm:"not null;default:0" json:"display_order"`
	NorthAzimuthCorrection float64   `gorm:"not null;default:0" json:"north_azimuth_correction"`
	CreatedAt              time.Time `json:"created_at"`
	UpdatedAt              time.Time `json:"updated_at"`
}

// ProjectPermission maps a user to a per-project role
// (operator, manager, viewer, no_access).
type ProjectPermission struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    uint      `gorm:"not null;uniqueIndex:idx_user_project" json:"user_id"`
	ProjectID uint      `gorm:"not null;uniqueIndex:idx_user_project" json:"project_id"`
	Role      string    `gorm:"size:50;not null" json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AuditLog is an append-only record of a sensitive action.
type AuditLog struct {
	ID            string    `gorm:"type:uuid;primaryKey" json:"id"`
	UserID        *uint     `gorm:"index" json:"user_id,omitempty"`
	ProjectID     *uint     `gorm:"index" json:"project_id,omitempty"`
	Category      string    `gorm:"size:50;not null;index" json:"category"`
	ActionType    string    `gorm:"size:100;not null;index" json:"action_type"`
	ActionName    string    `gorm:"size:255;not null" json:"action_name"`
	ResourceType  *string   `gorm:"size:50" json:"resource_type,omitempty"`
	ResourceID    *string   `gorm:"size:255" json:"resource_id,omitempty"`
	Details       JSONB     `gorm:"type:jsonb;default:'{}'" json:"details,omitempty"`
	IPAddress     *string   `gorm:"size:45" json:"ip_address,omitempty"`
	UserAgent     *string   `json:"user_agent,omitempty"`
	RequestMethod *string   `gorm:"size:10" json:"request_method,omitempty"`
	RequestPath   *string   `gorm:"size:500" json:"request_path,omitempty"`
	Status        string    `gorm:"size:20;not null;default:success" json:"status"`
	ErrorMessage  *string   `json:"error_message,omitempty"`
	CreatedAt     time.Time `gorm:"index" json:"created_at"`
}

// BeforeCreate assigns the entry id in Go so the model does not depend
// on a database-side uuid generator.
func (a *AuditLog) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}

// GeologyEge is one entry of the global engineering-geology element
// catalog (soil layer reference data shared across projects).
type GeologyEge struct {
	ID               uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Code             string    `gorm:"size:50;uniqueIndex;not null" json:"code"`
	Name             string    `gorm:"size:255;not null" json:"name"`
	Description      *string   `json:"description,omitempty"`
	HatchPatternName *string   `gorm:"size:100" json:"hatch_pattern_name,omitempty"`
	HatchScale       float64   `gorm:"not null;default:0.5" json:"hatch_scale"`
	ColorHex         string    `gorm:"size:7;not null;default:#FFFFFF" json:"color_hex"`
	Rho              *float64  `json:"rho,omitempty"`
	VoidRatio        *float64  `json:"e_void,omitempty"`
	MoistureTotal    *float64  `json:"w_tot,omitempty"`
	LiquidLimit      *float64  `json:"w_l,omitempty"`
	PlasticLimit     *float64  `json:"w_p,omitempty"`
	PlasticityIndex  *float64  `json:"ip,omitempty"`
	LiquidityIndex   *float64  `json:"il,omitempty"`
	DeformationMod   *float64  `json:"e_mod,omitempty"`
	Cohesion         *float64  `json:"c_coh,omitempty"`
	FrictionAngle    *float64  `json:"phi,omitempty"`
	FreezeTemp       *float64  `json:"t_bf,omitempty"`
	ThermalCondTh    *float64  `json:"lambda_th,omitempty"`
	ThermalCondF     *float64  `json:"lambda_f,omitempty"`
	PhaseHeat        *float64  `json:"q_ph,omitempty"`
	IceContent       *float64  `json:"i_tot,omitempty"`
	Salinity         float64   `gorm:"not null;default:0" json:"d_sal"`
	SalinizationType string    `gorm:"size:50;not null;default:NON_SALINE" json:"salinization_type"`
	SoilType         *string   `gorm:"size:50" json:"soil_type,omitempty"`
	IsActive         bool      `gorm:"not null;default:true" json:"is_active"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}
