package client

import (
	"errors"
	"os"
	"path"
	"strings"
)

// Where is the farm scheduler running?
// We store the answer (as host:port\nhost:port) in ~/.testfarmaddr
// There are two lines: first is the scheduler api addr, second is the ops http addr.
// The user may set TESTFARM_ID=<ArbitraryId> to refer to a farm address other than the default.
//  This is useful, for example, in dev testing against multiple local farms.

// Get the path of the file containing the address for the client to use
func GetFarmAddrPath() string {
	optionalId := os.Getenv("TESTFARM_ID") // Used to connect to a different farm instance.
	return path.Join(os.Getenv("HOME"), ".testfarmaddr"+optionalId)
}

// Get the farm addresses (as host:port)
func GetFarmAddr() (sched string, ops string, err error) {
	data, err := os.ReadFile(GetFarmAddrPath())
	if err != nil {
		if os.IsNotExist(err) {
			return "", "", nil
		}
		return "", "", err
	}
	addrs := strings.Split(string(data), "\n")
	if len(addrs) < 2 {
		return "", "", errors.New("Expected both sched and ops addrs, got: " + string(data))
	}
	return strings.TrimSpace(addrs[0]), strings.TrimSpace(addrs[1]), nil
}

// Set the farm addresses (as host:port)
func SetFarmAddr(sched string, ops string) {
	os.WriteFile(GetFarmAddrPath(), []byte(sched+"\n"+ops), 0777)
}
