// Package flightctl talks to a running hadie over D-Bus.
package flightctl

import "github.com/godbus/dbus"

const (
	dbusPath   = "/org/hadie/Flight"
	dbusDest   = "org.hadie.Flight"
	methodBase = "org.hadie.Flight"
)

func getDbusObj() (dbus.BusObject, error) {
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, err
	}
	obj := conn.Object(dbusDest, dbusPath)
	return obj, nil
}

// Status returns the flight status as JSON.
func Status() (string, error) {
	obj, err := getDbusObj()
	if err != nil {
		return "", err
	}
	var status string
	err = obj.Call(methodBase+".Status", 0).Store(&status)
	return status, err
}

func SkipImage() error {
	obj, err := getDbusObj()
	if err != nil {
		return err
	}
	return obj.Call(methodBase+".SkipImage", 0).Store()
}
