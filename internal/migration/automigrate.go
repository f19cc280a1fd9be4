package migration

import (
	attributiondomain "github.com/mutualabs/mutua/internal/attribution/domain"
	auditdomain "github.com/mutualabs/mutua/internal/audit/domain"
	ledgerdomain "github.com/mutualabs/mutua/internal/ledger/domain"
	organizationdomain "github.com/mutualabs/mutua/internal/organization/domain"
	pricingruledomain "github.com/mutualabs/mutua/internal/pricingrule/domain"
	publicationdomain "github.com/mutualabs/mutua/internal/publication/domain"
	relationshipdomain "github.com/mutualabs/mutua/internal/relationship/domain"
	rosterdomain "github.com/mutualabs/mutua/internal/roster/domain"
	schedulerdomain "github.com/mutualabs/mutua/internal/scheduler/domain"
	"gorm.io/gorm"
)

// AutoMigrate creates the schema from the gorm models, the dev-install
// path for drivers the SQL migrations do not cover.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&organizationdomain.Organization{},
		&relationshipdomain.RelationshipType{},
		&pricingruledomain.FlatRule{},
		&pricingruledomain.TierRule{},
		&rosterdomain.Dependent{},
		&ledgerdomain.Account{},
		&ledgerdomain.Movement{},
		&attributiondomain.Attribution{},
		&publicationdomain.Publication{},
		&schedulerdomain.RecomputeJob{},
		&auditdomain.AuditLog{},
	)
}
