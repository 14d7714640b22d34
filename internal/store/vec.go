package store

import (
	vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
)

func init() {
	// Register sqlite-vec with the sqlite3 driver as an auto-loaded extension.
	// This makes vec_distance_cosine available on every connection.
	vec.Auto()
}
