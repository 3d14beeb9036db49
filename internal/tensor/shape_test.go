package tensor

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShapeNumElements(t *testing.T) {
	tests := []struct {
		name  string
		shape Shape
		want  int
	}{
		{"scalar", Shape{}, 1},
		{"vector", Shape{5}, 5},
		{"volume", Shape{3, 5, 7}, 105},
		{"empty axis", Shape{3, 0}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.shape.NumElements())
		})
	}
}

func TestShapeConcat(t *testing.T) {
	s := Shape{3, 5}
	got := s.Concat(7)
	assert.True(t, got.Equal(Shape{3, 5, 7}))
	assert.True(t, s.Equal(Shape{3, 5}), "receiver must not change")
}

func TestShapeValidate(t *testing.T) {
	require.NoError(t, Shape{2, 0, 3}.Validate())
	require.Error(t, Shape{2, -1}.Validate())
}

func TestComputeStrides(t *testing.T) {
	assert.Equal(t, []int{20, 5, 1}, Shape{3, 4, 5}.ComputeStrides())
	assert.Equal(t, []int{1}, Shape{9}.ComputeStrides())
}

func TestFoldUnfoldRoundTrip(t *testing.T) {
	shapes := []Shape{{1}, {7}, {3, 5}, {3, 5, 7}, {2, 1, 4, 3}}
	for _, s := range shapes {
		stride := s.ComputeStrides()
		for i := 0; i < s.NumElements(); i++ {
			coord := FoldIndex(i, s)
			require.Equal(t, i, UnfoldIndex(coord, stride), "shape %v index %d", s, i)
		}
	}
}

func TestBroadcastShapes(t *testing.T) {
	tests := []struct {
		name      string
		a, b      Shape
		want      Shape
		broadcast bool
		wantErr   bool
	}{
		{"middle axis", Shape{2, 1, 4}, Shape{2, 5, 4}, Shape{2, 5, 4}, true, false},
		{"identical", Shape{3, 5}, Shape{3, 5}, Shape{3, 5}, false, false},
		{"rank padding", Shape{4}, Shape{3, 4}, Shape{3, 4}, true, false},
		{"incompatible", Shape{2, 4}, Shape{7}, nil, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, broadcast, err := BroadcastShapes(tt.a, tt.b)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrShapeMismatch))
				return
			}
			require.NoError(t, err)
			assert.True(t, got.Equal(tt.want), "got %v want %v", got, tt.want)
			assert.Equal(t, tt.broadcast, broadcast)
		})
	}
}

func TestShapeString(t *testing.T) {
	assert.Equal(t, "{3, 5}", Shape{3, 5}.String())
}
