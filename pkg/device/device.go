// Copyright 2025-2026 The procband Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// included in the LICENSE file of this repository.

// Package device enumerates capture candidates and their local
// addresses.
package device

import (
	"errors"
	"fmt"
	"net"

	"github.com/google/gopacket/pcap"
)

// ErrNoDevices means enumeration succeeded but nothing was usable.
var ErrNoDevices = errors.New("no capture devices available")

// libpcap interface flag bits, as surfaced in pcap.Interface.Flags.
const (
	flagLoopback = 0x00000001
	flagUp       = 0x00000002
	flagRunning  = 0x00000004
)

// Device is one capture candidate.
type Device struct {
	Name  string
	Addrs []net.IP
}

// Find resolves the set of devices to monitor. With explicit names the
// list is honored as given, enriched with addresses when enumeration
// knows the device. Without names it returns every device that is up
// and running, skipping loopback unless all is set.
func Find(names []string, all bool) ([]Device, error) {
	ifs, err := pcap.FindAllDevs()
	if err != nil {
		return nil, fmt.Errorf("enumerate devices: %w", err)
	}
	devs := selectDevices(ifs, names, all)
	if len(devs) == 0 {
		return nil, ErrNoDevices
	}
	return devs, nil
}

func selectDevices(ifs []pcap.Interface, names []string, all bool) []Device {
	byName := make(map[string]pcap.Interface, len(ifs))
	for _, it := range ifs {
		byName[it.Name] = it
	}

	if len(names) > 0 {
		devs := make([]Device, 0, len(names))
		for _, name := range names {
			d := Device{Name: name}
			if it, ok := byName[name]; ok {
				d.Addrs = addrsOf(it)
			}
			devs = append(devs, d)
		}
		return devs
	}

	var devs []Device
	for _, it := range ifs {
		if it.Flags&flagUp == 0 || it.Flags&flagRunning == 0 {
			continue
		}
		if !all && it.Flags&flagLoopback != 0 {
			continue
		}
		devs = append(devs, Device{Name: it.Name, Addrs: addrsOf(it)})
	}
	return devs
}

func addrsOf(it pcap.Interface) []net.IP {
	addrs := make([]net.IP, 0, len(it.Addresses))
	for _, a := range it.Addresses {
		if a.IP != nil {
			addrs = append(addrs, a.IP)
		}
	}
	return addrs
}

// LocalAddrs folds the addresses of all devices into a lookup set keyed
// by canonical string form. Loopback addresses are always included so
// local-to-local traffic classifies as both sent and received.
func LocalAddrs(devs []Device) map[string]struct{} {
	set := make(map[string]struct{})
	for _, d := range devs {
		for _, ip := range d.Addrs {
			set[ip.String()] = struct{}{}
		}
	}
	set["127.0.0.1"] = struct{}{}
	set["::1"] = struct{}{}
	return set
}
