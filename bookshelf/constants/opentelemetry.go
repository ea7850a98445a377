package constant

// TelemetrySDKName identifies this library in OTEL resource attributes.
const TelemetrySDKName = "lib-bookshelf/opentelemetry"

// MaxMetricLabelLength caps metric label values to keep cardinality bounded.
const MaxMetricLabelLength = 64

// Telemetry attribute keys for database operations.
const (
	// AttrDBSystem is the OTEL semantic convention key for the database system name.
	AttrDBSystem = "db.system"
	// AttrDBName is the OTEL semantic convention key for the database name.
	AttrDBName = "db.name"
	// AttrDBMongoDBCollection is the OTEL semantic convention key for the MongoDB collection.
	AttrDBMongoDBCollection = "db.mongodb.collection"
	// AttrDBOperation is the OTEL semantic convention key for the operation name.
	AttrDBOperation = "db.operation"
)

// Catalog span attribute keys.
const (
	AttrCatalogPage       = "catalog.page"
	AttrCatalogPageSize   = "catalog.page_size"
	AttrCatalogIndex      = "catalog.index"
	AttrCatalogIndexState = "catalog.index_state"
)

// DBSystemMongoDB is the OTEL semantic convention value for MongoDB.
const DBSystemMongoDB = "mongodb"

// SanitizeMetricLabel truncates a label value to MaxMetricLabelLength.
func SanitizeMetricLabel(value string) string {
	if len(value) > MaxMetricLabelLength {
		return value[:MaxMetricLabelLength]
	}

	return value
}
