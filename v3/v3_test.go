package v3

import (
	"fmt"
	"testing"
)

func TestVecOps(Te *testing.T) {
	A, err := NewMatrix([]float64{1, 2, 3, 4, 5, 6})
	if err != nil {
		Te.Fatal(err)
	}
	if A.NVecs() != 2 {
		Te.Fatalf("%d vectors", A.NVecs())
	}
	v, _ := NewMatrix([]float64{1, 1, 2})
	B := Zeros(2)
	B.AddVec(A, v)
	if B.At(1, 2) != 8 || B.At(0, 0) != 2 {
		Te.Errorf("AddVec gave %v", B)
	}
	B.SubVec(B, v)
	for i := 0; i < 2; i++ {
		for j := 0; j < 3; j++ {
			if B.At(i, j) != A.At(i, j) {
				Te.Fatalf("SubVec does not undo AddVec: %v", B)
			}
		}
	}
	if v.At(0, 2) != 2 {
		Te.Error("SubVec must not modify its vector")
	}
	B.ScaleByVec(A, v)
	if B.At(1, 0) != 4 || B.At(1, 2) != 12 {
		Te.Errorf("ScaleByVec gave %v", B)
	}
	view := A.VecView(1)
	view.Set(0, 0, -4)
	if A.At(1, 0) != -4 {
		Te.Error("VecView should share the data of the matrix")
	}
	fmt.Println(A)
	if c := A.Col(2); c[0] != 3 || c[1] != 6 {
		Te.Errorf("Col gave %v", c)
	}
}

func TestNewMatrixError(Te *testing.T) {
	if _, err := NewMatrix([]float64{1, 2}); err == nil {
		Te.Error("a slice not divisible by 3 should give an error")
	}
	defer func() {
		if r := recover(); r != ErrShape {
			Te.Errorf("expected a shape panic, got %v", r)
		}
	}()
	Zeros(2).AddVec(Zeros(3), Zeros(1))
}
