package thing

import (
	"fmt"

	"github.com/nerrad567/czone-gateway/internal/czone"
)

// ID builds a Thing id.
func ID(t Type, instance uint32) string {
	return fmt.Sprintf("%s.%d", t, instance)
}

// CircuitType returns the Thing type a visible circuit maps to from its
// categories, checked in the order Lighting, BilgePumps, Pumps, Power.
// ok is false for circuits in none of them.
func CircuitType(c czone.Circuit) (t Type, power bool, ok bool) {
	switch {
	case c.HasCategory(czone.CategoryLighting):
		return TypeLight, false, true
	case c.HasCategory(czone.CategoryBilgePumps):
		return TypeBilgePump, false, true
	case c.HasCategory(czone.CategoryPumps):
		return TypePump, false, true
	case c.HasCategory(czone.CategoryPower):
		return TypeGenericCircuit, true, true
	default:
		return "", false, false
	}
}

// AcType returns the Thing type for an AC meter; ok is false for AC types
// that have no Thing.
func AcType(t czone.AcType) (Type, bool) {
	switch t {
	case czone.AcShorePower:
		return TypeShorePower, true
	case czone.AcInverter:
		return TypeInverter, true
	case czone.AcCharger:
		return TypeCharger, true
	default:
		return "", false
	}
}

// TankType returns the Thing type for a tank.
func TankType(t czone.TankType) Type {
	if t.IsFuel() {
		return TypeFuel
	}
	return TypeWater
}

// Derive returns the ids of the Things a configured component belongs to.
//
// Circuits in the Power category resolve to the meters and tanks they switch
// (through UiRelationships), falling back to their genericCircuit Thing.
// Binary logic states never map to Things.
func Derive(cfg *czone.Config, kind czone.DeviceKind, instance uint32) []string {
	if cfg == nil {
		if kind == czone.KindEngine {
			return []string{ID(TypeMarineEngine, instance)}
		}
		return nil
	}
	return derive(cfg, kind, instance, make(map[string]bool))
}

func derive(cfg *czone.Config, kind czone.DeviceKind, instance uint32, visited map[string]bool) []string {
	key := czone.Key(kind, instance)
	if visited[key] {
		return nil
	}
	visited[key] = true

	switch kind {
	case czone.KindCircuit:
		c, ok := cfg.Circuits[key]
		if !ok || !c.IsVisible() {
			return nil
		}
		t, power, ok := CircuitType(c)
		if !ok {
			return nil
		}
		if !power {
			return []string{ID(t, c.ControlID)}
		}
		var ids []string
		for _, rel := range cfg.Switched(c.ControlID) {
			ids = appendUnique(ids, derive(cfg, rel.SecondaryType.Kind(), rel.SecondaryID, visited)...)
		}
		if len(ids) == 0 {
			return []string{ID(TypeGenericCircuit, c.ControlID)}
		}
		return ids

	case czone.KindDcMeter:
		m, ok := cfg.DcMeters[key]
		if !ok || m.DcType != czone.DcBattery {
			return nil
		}
		ids := []string{ID(TypeBattery, m.Instance)}
		for _, icKey := range czone.SortedKeys(cfg.InverterChargers) {
			if ic := cfg.InverterChargers[icKey]; ic.BatteryBank == m.Instance {
				ids = appendUnique(ids, ID(TypeInverterCharger, ic.Instance))
			}
		}
		return ids

	case czone.KindAcMeter:
		m, ok := cfg.AcMeters[key]
		if !ok {
			return nil
		}
		var ids []string
		if t, ok := AcType(m.AcType); ok {
			ids = append(ids, ID(t, m.Instance))
		}
		for _, icKey := range czone.SortedKeys(cfg.InverterChargers) {
			if ic := cfg.InverterChargers[icKey]; ic.AcInstance == m.Instance {
				ids = appendUnique(ids, ID(TypeInverterCharger, ic.Instance))
			}
		}
		return ids

	case czone.KindTank:
		tank, ok := cfg.Tanks[key]
		if !ok {
			return nil
		}
		return []string{ID(TankType(tank.TankType), tank.Instance)}

	case czone.KindInverterCharger:
		if _, ok := cfg.InverterChargers[key]; !ok {
			return nil
		}
		return []string{ID(TypeInverterCharger, instance)}

	case czone.KindEngine:
		return []string{ID(TypeMarineEngine, instance)}

	default:
		return nil
	}
}

func appendUnique(ids []string, more ...string) []string {
	for _, id := range more {
		found := false
		for _, have := range ids {
			if have == id {
				found = true
				break
			}
		}
		if !found {
			ids = append(ids, id)
		}
	}
	return ids
}
