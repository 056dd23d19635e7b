package calib

import (
	"errors"
	"fmt"
	"math"
)

// ErrSingularMatrix is returned when elimination meets a zero pivot.
var ErrSingularMatrix = errors.New("matrix is singular")

// pivotTolerance is relative to the largest absolute entry of the matrix.
const pivotTolerance = 1e-12

// Matrix is a dense row-major square matrix.
type Matrix [][]float64

// Identity returns the n×n identity matrix.
func Identity(n int) Matrix {
	m := make(Matrix, n)
	for i := range m {
		m[i] = make([]float64, n)
		m[i][i] = 1
	}
	return m
}

// Clone deep-copies the matrix.
func (m Matrix) Clone() Matrix {
	c := make(Matrix, len(m))
	for i, row := range m {
		c[i] = append([]float64(nil), row...)
	}
	return c
}

// mustSquare panics on malformed dimensions. Callers inside this package build
// every matrix themselves, so a mismatch is a programming error.
func (m Matrix) mustSquare(rhs int) int {
	n := len(m)
	if n == 0 {
		panic("calib: empty matrix")
	}
	for i, row := range m {
		if len(row) != n {
			panic(fmt.Sprintf("calib: row %d has %d columns, want %d", i, len(row), n))
		}
	}
	if rhs >= 0 && rhs != n {
		panic(fmt.Sprintf("calib: right-hand side has %d entries, want %d", rhs, n))
	}
	return n
}

func (m Matrix) maxAbs() float64 {
	max := 0.0
	for _, row := range m {
		for _, v := range row {
			max = math.Max(max, math.Abs(v))
		}
	}
	return max
}

// Solve solves m·x = b with Gaussian elimination and partial pivoting.
// m and b are not modified.
func Solve(m Matrix, b []float64) ([]float64, error) {
	n := m.mustSquare(len(b))
	a := m.Clone()
	x := append([]float64(nil), b...)
	eps := pivotTolerance * m.maxAbs()

	for col := 0; col < n; col++ {
		pivot := col
		for r := col + 1; r < n; r++ {
			if math.Abs(a[r][col]) > math.Abs(a[pivot][col]) {
				pivot = r
			}
		}
		if math.Abs(a[pivot][col]) <= eps {
			return nil, ErrSingularMatrix
		}
		a[col], a[pivot] = a[pivot], a[col]
		x[col], x[pivot] = x[pivot], x[col]

		for r := col + 1; r < n; r++ {
			f := a[r][col] / a[col][col]
			if f == 0 {
				continue
			}
			for c := col; c < n; c++ {
				a[r][c] -= f * a[col][c]
			}
			x[r] -= f * x[col]
		}
	}

	// back substitution
	for r := n - 1; r >= 0; r-- {
		sum := x[r]
		for c := r + 1; c < n; c++ {
			sum -= a[r][c] * x[c]
		}
		x[r] = sum / a[r][r]
	}
	return x, nil
}

// Invert returns m⁻¹ using Gauss-Jordan elimination with partial pivoting.
func Invert(m Matrix) (Matrix, error) {
	n := m.mustSquare(-1)
	a := m.Clone()
	inv := Identity(n)
	eps := pivotTolerance * m.maxAbs()

	for col := 0; col < n; col++ {
		pivot := col
		for r := col + 1; r < n; r++ {
			if math.Abs(a[r][col]) > math.Abs(a[pivot][col]) {
				pivot = r
			}
		}
		if math.Abs(a[pivot][col]) <= eps {
			return nil, ErrSingularMatrix
		}
		a[col], a[pivot] = a[pivot], a[col]
		inv[col], inv[pivot] = inv[pivot], inv[col]

		p := a[col][col]
		for c := 0; c < n; c++ {
			a[col][c] /= p
			inv[col][c] /= p
		}
		for r := 0; r < n; r++ {
			if r == col {
				continue
			}
			f := a[r][col]
			if f == 0 {
				continue
			}
			for c := 0; c < n; c++ {
				a[r][c] -= f * a[col][c]
				inv[r][c] -= f * inv[col][c]
			}
		}
	}
	return inv, nil
}
