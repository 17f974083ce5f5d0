package dvfs

// fixedShift is the number of fractional bits carried by Fixed
const fixedShift = 10

// Fixed is a signed fixed-point number scaled by 2^10. The predictor works
// in this domain so its fractional utilization survives integer arithmetic.
type Fixed int64

// FixedFromInt converts n to fixed point
func FixedFromInt(n int) Fixed {
	return Fixed(int64(n) << fixedShift)
}

// Int truncates f back to an integer
func (f Fixed) Int() int {
	return int(f >> fixedShift)
}

// MulInt scales f by n
func (f Fixed) MulInt(n int) Fixed {
	return f * Fixed(n)
}

// DivInt divides f by n, truncating toward zero. Division by zero yields zero.
func (f Fixed) DivInt(n int) Fixed {
	if n == 0 {
		return 0
	}
	return f / Fixed(n)
}

// Raw returns the scaled integer representation
func (f Fixed) Raw() int64 {
	return int64(f)
}
