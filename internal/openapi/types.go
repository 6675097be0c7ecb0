package openapi

import "strings"

// TypeMapping is an OpenAPI type/format pair for a warehouse column type.
type TypeMapping struct {
	Type   string
	Format string
}

var (
	integer32 = TypeMapping{"integer", "int32"}
	integer64 = TypeMapping{"integer", "int64"}
	float32T  = TypeMapping{"number", "float"}
	double    = TypeMapping{"number", "double"}
	text      = TypeMapping{"string", ""}
	date      = TypeMapping{"string", "date"}
	dateTime  = TypeMapping{"string", "date-time"}
	timeOfDay = TypeMapping{"string", "time"}
	boolean   = TypeMapping{"boolean", ""}
	binary    = TypeMapping{"string", "byte"}
	uuidT     = TypeMapping{"string", "uuid"}
	object    = TypeMapping{"object", ""}
)

// warehouseTypes covers the column types reported by the supported
// warehouses (Fabric / SQL Server, Postgres, MySQL, Snowflake, Oracle,
// SQLite). Keys are lower case without length or precision.
var warehouseTypes = map[string]TypeMapping{
	"tinyint": integer32, "smallint": integer32, "int": integer32, "integer": integer32,
	"int2": integer32, "int4": integer32, "mediumint": integer32,
	"bigint": integer64, "int8": integer64,

	"real": float32T, "float4": float32T,
	"float": double, "float8": double, "double": double, "double precision": double,
	"decimal": double, "numeric": double, "number": double, "money": double, "smallmoney": double,

	"char": text, "nchar": text, "varchar": text, "nvarchar": text, "text": text, "ntext": text,
	"character": text, "character varying": text, "string": text, "varchar2": text,
	"nvarchar2": text, "clob": text, "xml": text, "sysname": text,

	"date":     date,
	"datetime": dateTime, "datetime2": dateTime, "smalldatetime": dateTime,
	"datetimeoffset": dateTime, "timestamp": dateTime, "timestamptz": dateTime,
	"timestamp with time zone": dateTime, "timestamp without time zone": dateTime,
	"timestamp_ntz": dateTime, "timestamp_ltz": dateTime, "timestamp_tz": dateTime,
	"time": timeOfDay, "timetz": timeOfDay,

	"bit": boolean, "bool": boolean, "boolean": boolean,

	"binary": binary, "varbinary": binary, "bytea": binary, "blob": binary, "raw": binary,

	"uniqueidentifier": uuidT, "uuid": uuidT,

	"json": object, "jsonb": object, "variant": object, "object": object,
	"array": {"array", ""},
}

// MapDBType converts a warehouse column type to an OpenAPI type mapping.
// Unknown types map to string.
func MapDBType(dbType string) TypeMapping {
	t := strings.ToLower(strings.TrimSpace(dbType))
	if i := strings.IndexByte(t, '('); i >= 0 {
		t = t[:i]
	}
	t = strings.TrimSpace(strings.TrimSuffix(t, " unsigned"))
	t = strings.TrimSuffix(t, "[]")

	if m, ok := warehouseTypes[t]; ok {
		return m
	}
	return text
}
