// pkg/entity/weapon.go
package entity

// WeaponType selects the projectile class a shot produces.
type WeaponType string

const (
	WeaponStandard WeaponType = "standard"
	WeaponHeavy    WeaponType = "heavy"
	WeaponLight    WeaponType = "light"
)

// WeaponSpec fixes the physical properties of a projectile class.
type WeaponSpec struct {
	Mass            float64
	Size            float64
	ExplosionRadius float64
}

var weaponSpecs = map[WeaponType]WeaponSpec{
	WeaponStandard: {Mass: 1.0, Size: 5, ExplosionRadius: 45},
	WeaponHeavy:    {Mass: 2.0, Size: 8, ExplosionRadius: 60},
	WeaponLight:    {Mass: 0.5, Size: 3, ExplosionRadius: 30},
}

// Resolve maps unknown or empty weapon types to WeaponStandard.
func (w WeaponType) Resolve() WeaponType {
	if _, ok := weaponSpecs[w]; ok {
		return w
	}
	return WeaponStandard
}

// Known reports whether w names a weapon class. The empty type counts as
// known because it means "use the default".
func (w WeaponType) Known() bool {
	if w == "" {
		return true
	}
	_, ok := weaponSpecs[w]
	return ok
}

// Spec returns the projectile properties for w.
func (w WeaponType) Spec() WeaponSpec {
	return weaponSpecs[w.Resolve()]
}
