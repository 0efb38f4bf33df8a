package gonumext

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Ones returns a (m by n) matrix filled with ones
func Ones(m, n int) mat.Matrix {
	return Full(m, n, 1.)
}

// Full returns a (m by n) matrix filled with value
func Full(m, n int, value float64) mat.Matrix {
	data := make([]float64, m*n)
	for index := range data {
		data[index] = value
	}
	tmp := mat.NewDense(m, n, data)
	return tmp
}

// FullVec returns a length-n vector filled with value
func FullVec(n int, value float64) *mat.VecDense {
	data := make([]float64, n)
	for index := range data {
		data[index] = value
	}
	return mat.NewVecDense(n, data)
}

// NANORINF checks if there are any NAN or INF in matrix
func NANORINF(matrix mat.Matrix) bool {
	m, n := matrix.Dims()
	for row := 0; row < m; row++ {
		for col := 0; col < n; col++ {
			if math.IsNaN(matrix.At(row, col)) || math.IsInf(matrix.At(row, col), 0) {
				return true
			}
		}
	}
	return false
}

// HasNegative checks if any matrix entry is strictly negative.
func HasNegative(matrix mat.Matrix) bool {
	m, n := matrix.Dims()
	for row := 0; row < m; row++ {
		for col := 0; col < n; col++ {
			if matrix.At(row, col) < 0 {
				return true
			}
		}
	}
	return false
}
