package stream

import (
	"database/sql/driver"
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/koustreak/userstream/internal/database"
	"github.com/koustreak/userstream/internal/errs"
)

// Row is one user record, fields in column order.
type Row struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Age    Age    `json:"age"`
}

// rowColumns is the fixed projection every row query selects, in scan order.
var rowColumns = []string{colUserID, colName, colEmail, colAge}

const (
	colUserID = "user_id"
	colName   = "name"
	colEmail  = "email"
	colAge    = "age"
)

// Age is a normalized age: an integer when the stored value has no
// fractional part, otherwise a float.
type Age struct {
	v float64
}

// maxExactInt is the largest integer a float64 holds exactly.
const maxExactInt = 1 << 53

// IntAge returns an integral Age.
func IntAge(n int64) Age { return Age{v: float64(n)} }

// FloatAge returns an Age holding f; it reports as an integer when f is integral.
func FloatAge(f float64) Age { return Age{v: f} }

// IsInt reports whether the age normalizes to an integer.
func (a Age) IsInt() bool {
	return a.v == math.Trunc(a.v) && math.Abs(a.v) <= maxExactInt
}

// Float64 returns the age as a float.
func (a Age) Float64() float64 { return a.v }

// Int returns the age truncated to an integer.
func (a Age) Int() int64 { return int64(a.v) }

// Native returns int64 for integral ages and float64 otherwise.
func (a Age) Native() any {
	if a.IsInt() {
		return a.Int()
	}
	return a.v
}

func (a Age) String() string {
	if a.IsInt() {
		return strconv.FormatInt(a.Int(), 10)
	}
	return strconv.FormatFloat(a.v, 'f', -1, 64)
}

// MarshalJSON writes 30 for integral ages and 25.5 otherwise.
func (a Age) MarshalJSON() ([]byte, error) {
	if math.IsNaN(a.v) || math.IsInf(a.v, 0) {
		return nil, fmt.Errorf("age %v is not representable in JSON", a.v)
	}
	return []byte(a.String()), nil
}

// UnmarshalJSON accepts any JSON number.
func (a *Age) UnmarshalJSON(b []byte) error {
	f, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return err
	}
	a.v = f
	return nil
}

// NormalizeAge converts a driver value for the age column into an Age.
// MySQL returns DECIMAL as text bytes, pgx returns NUMERIC as a
// driver.Valuer; both end up parsed as a float.
func NormalizeAge(v any) (Age, error) {
	switch x := v.(type) {
	case nil:
		return Age{}, errs.New(errs.ErrKindQueryFailed, "age is NULL")
	case Age:
		return x, nil
	case int:
		return IntAge(int64(x)), nil
	case int8:
		return IntAge(int64(x)), nil
	case int16:
		return IntAge(int64(x)), nil
	case int32:
		return IntAge(int64(x)), nil
	case int64:
		return IntAge(x), nil
	case uint:
		return FloatAge(float64(x)), nil
	case uint8:
		return IntAge(int64(x)), nil
	case uint16:
		return IntAge(int64(x)), nil
	case uint32:
		return IntAge(int64(x)), nil
	case uint64:
		return FloatAge(float64(x)), nil
	case float32:
		return FloatAge(float64(x)), nil
	case float64:
		return FloatAge(x), nil
	case []byte:
		return parseAge(string(x))
	case string:
		return parseAge(x)
	case driver.Valuer:
		dv, err := x.Value()
		if err != nil {
			return Age{}, errs.Wrap(errs.ErrKindQueryFailed, "failed to read age value", err)
		}
		if _, loop := dv.(driver.Valuer); loop {
			return Age{}, errs.Newf(errs.ErrKindQueryFailed, "unsupported age type %T", v)
		}
		return NormalizeAge(dv)
	default:
		return Age{}, errs.Newf(errs.ErrKindQueryFailed, "unsupported age type %T", v)
	}
}

func parseAge(s string) (Age, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return Age{}, errs.Wrap(errs.ErrKindQueryFailed, fmt.Sprintf("invalid age %q", s), err)
	}
	return FloatAge(f), nil
}

// identifier renders a user_id value as text. UUID columns come back from
// pgx as 16 raw bytes.
func identifier(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case []byte:
		return string(x), nil
	case [16]byte:
		h := hex.EncodeToString(x[:])
		return h[0:8] + "-" + h[8:12] + "-" + h[12:16] + "-" + h[16:20] + "-" + h[20:32], nil
	case nil:
		return "", errs.New(errs.ErrKindQueryFailed, "user_id is NULL")
	case fmt.Stringer:
		return x.String(), nil
	default:
		return fmt.Sprint(x), nil
	}
}

// scanRow reads the current row of a rowColumns projection. Every row the
// package yields passes through here, so age normalization is uniform.
func scanRow(rows database.Rows) (Row, error) {
	var (
		r        Row
		uid, age any
	)
	if err := rows.Scan(&uid, &r.Name, &r.Email, &age); err != nil {
		return Row{}, wrap(errs.ErrKindQueryFailed, "failed to scan row", err)
	}

	var err error
	if r.UserID, err = identifier(uid); err != nil {
		return Row{}, err
	}
	if r.Age, err = NormalizeAge(age); err != nil {
		return Row{}, err
	}
	return r, nil
}

// scanAge reads the current row of an age-only projection.
func scanAge(rows database.Rows) (Age, error) {
	var age any
	if err := rows.Scan(&age); err != nil {
		return Age{}, wrap(errs.ErrKindQueryFailed, "failed to scan age", err)
	}
	return NormalizeAge(age)
}
