package script

import "strconv"

func parseFloatLiteral(lit string) (float64, error) {
	return strconv.ParseFloat(lit, 64)
}
