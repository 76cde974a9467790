package models

// All returns every persisted model, in migration order
func All() []interface{} {
	return []interface{}{
		&UploadBatch{},
		&StagingRow{},
		&BaseProduct{},
		&Category{},
		&Shop{},
		&Listing{},
		&SpecRule{},
		&SKUSequence{},
		&SellerUploadGate{},
	}
}
