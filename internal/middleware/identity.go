package middleware

import "github.com/labstack/echo/v4"

// Caller is the authenticated identity extracted from a validated token.
// HospitalID is zero for callers without a hospital link.
type Caller struct {
	UserID     uint64
	Role       string
	HospitalID uint64
}

// CallerFrom reads the identity set by JWTAuth. It returns false when the
// route was not behind JWTAuth or the claims were malformed.
func CallerFrom(c echo.Context) (Caller, bool) {
	id, ok := claimUint64(c.Get("user_id"))
	if !ok || id == 0 {
		return Caller{}, false
	}
	role, _ := c.Get("role").(string)
	hid, _ := claimUint64(c.Get("hospital_id"))
	return Caller{UserID: id, Role: role, HospitalID: hid}, true
}

// JWT numeric claims decode as float64; tokens we mint carry integers but a
// freshly parsed token goes through JSON first.
func claimUint64(v interface{}) (uint64, bool) {
	switch n := v.(type) {
	case uint64:
		return n, true
	case float64:
		if n < 0 {
			return 0, false
		}
		return uint64(n), true
	case int64:
		if n < 0 {
			return 0, false
		}
		return uint64(n), true
	case int:
		if n < 0 {
			return 0, false
		}
		return uint64(n), true
	}
	return 0, false
}
