// pkg/core/types.go
package core

// Identity names a player or projectile for the duration of a session.
type Identity string

// Vector3 is a position or direction in world space.
type Vector3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Rotation holds the pitch (X) and yaw (Y) of a player's view.
type Rotation struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// PlayerState is a player's last reported pose and vitals.
// Inbound updates replace it wholesale.
type PlayerState struct {
	ID       Identity `json:"id"`
	Position Vector3  `json:"position"`
	Rotation Rotation `json:"rotation"`
	Health   int      `json:"health"`
}

// ProjectileState is the spawn pose and heading of one shot.
// It is a creation event; no further updates follow for the same ID.
type ProjectileState struct {
	ID        Identity `json:"id"`
	Position  Vector3  `json:"position"`
	Direction Vector3  `json:"direction"`
}

// Scale returns v multiplied by s.
func (v Vector3) Scale(s float64) Vector3 {
	return Vector3{X: v.X * s, Y: v.Y * s, Z: v.Z * s}
}

// Add returns the component-wise sum of v and o.
func (v Vector3) Add(o Vector3) Vector3 {
	return Vector3{X: v.X + o.X, Y: v.Y + o.Y, Z: v.Z + o.Z}
}
