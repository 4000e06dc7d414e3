package query

import (
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// Dialect renders JSON extraction and conversion fragments for one database.
// Keys passed to a Dialect are trusted: they come from fixed synonym lists or
// have been validated against sortKeyPattern.
type Dialect interface {
	Name() string
	// Text returns the value stored under key as text, NULL when absent.
	Text(column, key string) string
	// Document returns the whole JSON document as text.
	Document(column string) string
	// Year4 converts a text expression holding exactly four digits into an integer, else NULL.
	Year4(expr string) string
	// DateYear extracts the year of an ISO date text expression, else NULL.
	DateYear(expr string) string
	// DistanceKM returns an expression with two placeholders (reference latitude,
	// longitude) that yields the distance in km, or a negative/NULL value when the
	// stored coordinates are missing or not numeric.
	DistanceKM(latExpr, lngExpr string) (expr string, refArgs func(lat, lng float64) []interface{})
}

// DialectFor picks the dialect matching the gorm connection.
func DialectFor(db *gorm.DB) Dialect {
	if db == nil || db.Dialector == nil {
		return sqliteDialect{}
	}
	switch db.Dialector.Name() {
	case "postgres":
		return postgresDialect{}
	case "mysql":
		return mysqlDialect{}
	default:
		return sqliteDialect{}
	}
}

func jsonPath(key string) string {
	return fmt.Sprintf(`'$."%s"'`, key)
}

type sqliteDialect struct{}

func (sqliteDialect) Name() string { return "sqlite" }

func (sqliteDialect) Text(column, key string) string {
	return fmt.Sprintf("CAST(json_extract(%s, %s) AS TEXT)", column, jsonPath(key))
}

func (sqliteDialect) Document(column string) string {
	return fmt.Sprintf("CAST(%s AS TEXT)", column)
}

func (sqliteDialect) Year4(expr string) string {
	return fmt.Sprintf("(CASE WHEN TRIM(%[1]s) GLOB '[0-9][0-9][0-9][0-9]' THEN CAST(TRIM(%[1]s) AS INTEGER) END)", expr)
}

func (sqliteDialect) DateYear(expr string) string {
	return fmt.Sprintf("(CASE WHEN %[1]s GLOB '[0-9][0-9][0-9][0-9]-[0-9][0-9]-[0-9][0-9]*' THEN CAST(substr(%[1]s, 1, 4) AS INTEGER) END)", expr)
}

func (sqliteDialect) DistanceKM(latExpr, lngExpr string) (string, func(lat, lng float64) []interface{}) {
	expr := fmt.Sprintf("haversine_km(%s, %s, ?, ?)", latExpr, lngExpr)
	return expr, func(lat, lng float64) []interface{} { return []interface{}{lat, lng} }
}

const numericPattern = `'^[-+]{0,1}[0-9]+([.][0-9]+){0,1}$'`

type postgresDialect struct{}

func (postgresDialect) Name() string { return "postgres" }

func (postgresDialect) Text(column, key string) string {
	return fmt.Sprintf("(%s->>'%s')", column, key)
}

func (postgresDialect) Document(column string) string {
	return fmt.Sprintf("CAST(%s AS TEXT)", column)
}

func (postgresDialect) Year4(expr string) string {
	return fmt.Sprintf("(CASE WHEN TRIM(%[1]s) ~ '^[0-9]{4}$' THEN CAST(TRIM(%[1]s) AS INTEGER) END)", expr)
}

func (postgresDialect) DateYear(expr string) string {
	return fmt.Sprintf("(CASE WHEN %[1]s ~ '^[0-9]{4}-[0-9]{2}-[0-9]{2}' THEN CAST(substr(%[1]s, 1, 4) AS INTEGER) END)", expr)
}

func (postgresDialect) DistanceKM(latExpr, lngExpr string) (string, func(lat, lng float64) []interface{}) {
	lat := fmt.Sprintf("CAST(%s AS DOUBLE PRECISION)", latExpr)
	lng := fmt.Sprintf("CAST(%s AS DOUBLE PRECISION)", lngExpr)
	expr := fmt.Sprintf(`(CASE WHEN %[1]s ~ %[3]s AND %[2]s ~ %[3]s THEN %[4]s END)`,
		latExpr, lngExpr, numericPattern, greatCircle(lat, lng))
	return expr, func(lat, lng float64) []interface{} { return []interface{}{lat, lng, lat} }
}

type mysqlDialect struct{}

func (mysqlDialect) Name() string { return "mysql" }

func (mysqlDialect) Text(column, key string) string {
	return fmt.Sprintf("JSON_UNQUOTE(JSON_EXTRACT(%s, %s))", column, jsonPath(key))
}

func (mysqlDialect) Document(column string) string {
	return fmt.Sprintf("CAST(%s AS CHAR)", column)
}

func (mysqlDialect) Year4(expr string) string {
	return fmt.Sprintf("(CASE WHEN TRIM(%[1]s) REGEXP '^[0-9]{4}$' THEN CAST(TRIM(%[1]s) AS UNSIGNED) END)", expr)
}

func (mysqlDialect) DateYear(expr string) string {
	return fmt.Sprintf("(CASE WHEN %[1]s REGEXP '^[0-9]{4}-[0-9]{2}-[0-9]{2}' THEN CAST(SUBSTRING(%[1]s, 1, 4) AS UNSIGNED) END)", expr)
}

func (mysqlDialect) DistanceKM(latExpr, lngExpr string) (string, func(lat, lng float64) []interface{}) {
	lat := fmt.Sprintf("CAST(%s AS DECIMAL(10,8))", latExpr)
	lng := fmt.Sprintf("CAST(%s AS DECIMAL(11,8))", lngExpr)
	expr := fmt.Sprintf(`(CASE WHEN %[1]s REGEXP %[3]s AND %[2]s REGEXP %[3]s THEN %[4]s END)`,
		latExpr, lngExpr, numericPattern, greatCircle(lat, lng))
	return expr, func(lat, lng float64) []interface{} { return []interface{}{lat, lng, lat} }
}

// greatCircle is the spherical law of cosines form of the haversine distance,
// clamped so rounding never pushes acos outside its domain.
func greatCircle(lat, lng string) string {
	return strings.Join([]string{
		"6371 * acos(LEAST(1, GREATEST(-1,",
		fmt.Sprintf("cos(radians(?)) * cos(radians(%s)) * cos(radians(%s) - radians(?))", lat, lng),
		fmt.Sprintf("+ sin(radians(?)) * sin(radians(%s))", lat),
		")))",
	}, " ")
}
