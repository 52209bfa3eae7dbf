package gormstore

import "gorm.io/gorm/clause"

// onConflictDoNothing makes a Create a no-op when the row's primary key
// already exists, used for idempotency bindings that may be written
// concurrently by retried requests.
func onConflictDoNothing() clause.OnConflict {
	return clause.OnConflict{DoNothing: true}
}
