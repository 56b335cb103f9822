package seating

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mateusmacedo/go-boarding/internal/boarding/domain"
)

func TestEngine_PreferenceWins(t *testing.T) {
	e := NewEngine(DefaultLayout())

	seat, ok := e.Assign("D", domain.TypeStandby, "1A")
	require.True(t, ok)
	assert.Equal(t, "1A", seat)
}

func TestEngine_TakenPreferenceFallsBackToHeuristic(t *testing.T) {
	e := NewEngine(DefaultLayout())
	require.NoError(t, e.Claim("X", "3B"))

	seat, ok := e.Assign("R", domain.TypeRegular, "3B")
	require.True(t, ok)
	assert.Equal(t, "1B", seat)
}

func TestEngine_Heuristics(t *testing.T) {
	tests := []struct {
		name string
		typ  domain.PassengerType
		want string
	}{
		{"vip takes first seat of lowest row group", domain.TypeVIP, "1A"},
		{"elderly takes first outer seat", domain.TypeElderly, "1A"},
		{"regular takes first interior seat", domain.TypeRegular, "1B"},
		{"standby takes last seat", domain.TypeStandby, "8D"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEngine(DefaultLayout())
			seat, ok := e.Assign("p", tt.typ, "")
			require.True(t, ok)
			assert.Equal(t, tt.want, seat)
		})
	}
}

func TestEngine_VIPFallsBackThroughRowGroups(t *testing.T) {
	e := NewEngine(DefaultLayout())
	for _, s := range []string{"1A", "1B", "1C", "1D", "2A", "2B", "2C", "2D"} {
		require.NoError(t, e.Claim("x"+s, s))
	}

	seat, ok := e.Assign("vip", domain.TypeVIP, "")
	require.True(t, ok)
	assert.Equal(t, "3A", seat, "group 1 (rows 3-4) is next")

	for _, s := range []string{"3B", "3C", "3D", "4A", "4B", "4C", "4D"} {
		require.NoError(t, e.Claim("x"+s, s))
	}
	seat, ok = e.Assign("vip2", domain.TypeVIP, "")
	require.True(t, ok)
	assert.Equal(t, "5A", seat, "premium groups exhausted, first available overall")
}

func TestEngine_ElderlyAndRegularFallBack(t *testing.T) {
	layout, err := NewLayout(LayoutConfig{
		Rows:              1,
		Columns:           []string{"A", "B"},
		AccessibleColumns: []string{"A"},
	})
	require.NoError(t, err)

	e := NewEngine(layout)
	require.NoError(t, e.Claim("x", "1A"))
	seat, ok := e.Assign("elderly", domain.TypeElderly, "")
	require.True(t, ok)
	assert.Equal(t, "1B", seat)

	e = NewEngine(layout)
	require.NoError(t, e.Claim("x", "1B"))
	seat, ok = e.Assign("regular", domain.TypeRegular, "")
	require.True(t, ok)
	assert.Equal(t, "1A", seat)
}

func TestEngine_EmptyPoolIsNotAnError(t *testing.T) {
	layout, err := NewLayout(LayoutConfig{Rows: 1, Columns: []string{"A"}})
	require.NoError(t, err)
	e := NewEngine(layout)

	_, ok := e.Assign("a", domain.TypeRegular, "")
	require.True(t, ok)
	_, ok = e.Assign("b", domain.TypeRegular, "")
	assert.False(t, ok)
}

func TestEngine_ReleaseReturnsSeatToPool(t *testing.T) {
	e := NewEngine(DefaultLayout())
	seat, ok := e.Assign("E", domain.TypeStandby, "")
	require.True(t, ok)
	assert.NotContains(t, e.Available(), seat)

	released, ok := e.Release("E")
	require.True(t, ok)
	assert.Equal(t, seat, released)
	assert.Contains(t, e.Available(), seat)
	assert.Len(t, e.Available(), 32)

	_, ok = e.Release("E")
	assert.False(t, ok)
}

func TestEngine_SeatsStayUnique(t *testing.T) {
	e := NewEngine(DefaultLayout())
	for i := 0; i < 40; i++ {
		typ := domain.PassengerTypes[i%len(domain.PassengerTypes)]
		e.Assign(string(rune('a'+i)), typ, "1A")
	}

	seen := map[string]bool{}
	for _, a := range e.Assignments() {
		assert.False(t, seen[a.SeatNumber], "seat %s assigned twice", a.SeatNumber)
		seen[a.SeatNumber] = true
	}
	assert.Len(t, e.Assignments(), 32)
	assert.Empty(t, e.Available())
}

func TestEngine_Claim(t *testing.T) {
	e := NewEngine(DefaultLayout())

	require.NoError(t, e.Claim("a", "2C"))
	require.NoError(t, e.Claim("a", "2C"), "re-claiming own seat is a no-op")
	assert.ErrorIs(t, e.Claim("b", "2C"), ErrSeatTaken)
	assert.ErrorIs(t, e.Claim("b", "9Z"), ErrUnknownSeat)

	require.NoError(t, e.Claim("a", "3C"))
	assert.True(t, e.IsFree("2C"), "moving seats frees the old one")
	seat, _ := e.SeatOf("a")
	assert.Equal(t, "3C", seat)
}

func TestEngine_CloneIsIndependent(t *testing.T) {
	e := NewEngine(DefaultLayout())
	require.NoError(t, e.Claim("a", "1A"))

	c := e.Clone()
	c.Release("a")

	assert.False(t, e.IsFree("1A"))
	assert.True(t, c.IsFree("1A"))
}
