package license

import (
	"github.com/denisbrodbeck/machineid"
)

const appID = "market-gateway"

// MachineID returns this host's id hashed with the application id, so the
// raw machine id never ends up in a token.
func MachineID() (string, error) {
	return machineid.ProtectedID(appID)
}
