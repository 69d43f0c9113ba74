package model

// All lists every persisted model for migrations.
func All() []any {
	return []any{
		&Marketplace{},
		&Device{},
		&Listing{},
		&PurchaseRecord{},
		&ResealJob{},
		&QualityJob{},
		&DqState{},
		&TokenAccount{},
		&Event{},
		&RelayerCursor{},
	}
}
