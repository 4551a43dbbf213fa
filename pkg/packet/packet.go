package packet

import "fmt"

// Type is the command byte at the start of every packet.
type Type byte

const (
	ParticleData        Type = 'v'
	ParticleAddOrEdit   Type = 'a'
	ParticleErase       Type = 'x'
	ParticleAddResponse Type = 'b'
)

func (t Type) String() string {
	switch t {
	case ParticleData:
		return "ParticleData"
	case ParticleAddOrEdit:
		return "ParticleAddOrEdit"
	case ParticleErase:
		return "ParticleErase"
	case ParticleAddResponse:
		return "ParticleAddResponse"
	}
	return fmt.Sprintf("Type(%d)", byte(t))
}

// IsEdit reports whether packets of this type carry particle edit records.
func (t Type) IsEdit() bool {
	return t == ParticleAddOrEdit
}
