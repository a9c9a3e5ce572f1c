package database

import (
	"fmt"

	approvalModel "freightlink/models/approval"
	loadModel "freightlink/models/load"
	logModel "freightlink/models/log"
	otpModel "freightlink/models/otp"
	ratingModel "freightlink/models/rating"
	shipmentModel "freightlink/models/shipment"
	userModel "freightlink/models/user"

	"gorm.io/gorm"
)

// Migrate runs auto migration for all models in dependency order
func Migrate(db *gorm.DB) error {
	// Stage 1: Core foundation models
	stage1Models := []interface{}{
		&userModel.User{},
		&loadModel.Load{},
	}

	for _, model := range stage1Models {
		if err := db.AutoMigrate(model); err != nil {
			return fmt.Errorf("failed to migrate %T: %w", model, err)
		}
	}

	// Stage 2: Models with dependencies on Stage 1
	stage2Models := []interface{}{
		&shipmentModel.Shipment{},
	}

	for _, model := range stage2Models {
		if err := db.AutoMigrate(model); err != nil {
			return fmt.Errorf("failed to migrate %T: %w", model, err)
		}
	}

	// Stage 3: Trip gate and post-completion models
	stage3Models := []interface{}{
		&shipmentModel.ShipmentStatusEvent{},
		&otpModel.TripOTP{},
		&otpModel.TripOTPEvent{},
		&approvalModel.ApprovalTask{},
		&ratingModel.RatingObligation{},
		&ratingModel.Rating{},
	}

	for _, model := range stage3Models {
		if err := db.AutoMigrate(model); err != nil {
			return fmt.Errorf("failed to migrate %T: %w", model, err)
		}
	}

	// Remaining models
	remainingModels := []interface{}{
		&logModel.Log{},
	}

	for _, model := range remainingModels {
		if err := db.AutoMigrate(model); err != nil {
			return fmt.Errorf("failed to migrate %T: %w", model, err)
		}
	}

	return nil
}

// createIndexes creates additional indexes for better performance
func createIndexes() error {
	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_users_uuid ON users(uuid)",
		"CREATE INDEX IF NOT EXISTS idx_users_phone ON users(phone)",
		"CREATE INDEX IF NOT EXISTS idx_loads_uuid ON loads(uuid)",
		"CREATE INDEX IF NOT EXISTS idx_loads_status ON loads(status)",
		"CREATE INDEX IF NOT EXISTS idx_shipments_uuid ON shipments(uuid)",
		"CREATE INDEX IF NOT EXISTS idx_shipments_status ON shipments(status)",
		"CREATE INDEX IF NOT EXISTS idx_shipments_created_at ON shipments(created_at)",
		"CREATE INDEX IF NOT EXISTS idx_trip_otps_pair ON trip_otps(shipment_id, checkpoint)",
		"CREATE INDEX IF NOT EXISTS idx_approval_tasks_status ON approval_tasks(status)",
		"CREATE INDEX IF NOT EXISTS idx_approval_tasks_requested_at ON approval_tasks(requested_at)",
		"CREATE INDEX IF NOT EXISTS idx_rating_obligations_status ON rating_obligations(status)",
		"CREATE INDEX IF NOT EXISTS idx_logs_status_code ON logs(status_code)",
		"CREATE INDEX IF NOT EXISTS idx_logs_created_at ON logs(created_at)",
	}

	for _, sql := range indexes {
		if err := DB.Exec(sql).Error; err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	return nil
}

// createForeignKeyConstraints creates foreign key constraints after auto migration
func createForeignKeyConstraints() error {
	constraints := []struct {
		name string
		sql  string
	}{
		{
			name: "fk_shipments_load",
			sql: `ALTER TABLE shipments ADD CONSTRAINT fk_shipments_load
				  FOREIGN KEY (load_id) REFERENCES loads(id)
				  ON UPDATE CASCADE ON DELETE RESTRICT`,
		},
		{
			name: "fk_shipments_carrier",
			sql: `ALTER TABLE shipments ADD CONSTRAINT fk_shipments_carrier
				  FOREIGN KEY (carrier_id) REFERENCES users(id)
				  ON UPDATE CASCADE ON DELETE RESTRICT`,
		},
		{
			name: "fk_rating_obligations_shipment",
			sql: `ALTER TABLE rating_obligations ADD CONSTRAINT fk_rating_obligations_shipment
				  FOREIGN KEY (shipment_id) REFERENCES shipments(id)
				  ON UPDATE CASCADE ON DELETE RESTRICT`,
		},
	}

	for _, constraint := range constraints {
		var exists bool
		checkSQL := `
			SELECT EXISTS (
				SELECT 1 FROM information_schema.table_constraints
				WHERE constraint_name = $1
			)
		`

		err := DB.Raw(checkSQL, constraint.name).Scan(&exists).Error
		if err != nil {
			fmt.Printf("Failed to check constraint existence: %s - Error: %v\n", constraint.name, err)
			continue
		}

		if !exists {
			if err := DB.Exec(constraint.sql).Error; err != nil {
				fmt.Printf("Failed to create constraint: %s - Error: %v\n", constraint.name, err)
			}
		}
	}

	return nil
}
