/*
 * Copyright 2025 Chassis Labs, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package models defines the shared data model for the boardlink coordinator:
// board ports, device lists, operation states, and the agent message shapes.
package models

// BoardPort represents one programmable board attached to the local machine.
// Name is the identity (a serial port path such as COM3 or /dev/ttyACM0, or a
// network address for network-attached boards).
type BoardPort struct {
	Name         string `json:"Name"`
	IsOpen       bool   `json:"IsOpen"`
	SerialNumber string `json:"SerialNumber,omitempty"`
	VendorID     string `json:"VendorID,omitempty"`
	ProductID    string `json:"ProductID,omitempty"`
	// Addr is set for network boards discovered via mDNS; serial boards
	// leave it empty.
	Addr string `json:"Addr,omitempty"`
}

// DeviceList holds the boards currently visible to the agent, split by
// attachment kind. Order within each sub-list is significant: the agent
// reports ports in a stable order and positional changes are real changes.
type DeviceList struct {
	Serial  []BoardPort `json:"serial"`
	Network []BoardPort `json:"network"`
}

// EmptyDeviceList returns the reset value published when the channel closes.
func EmptyDeviceList() DeviceList {
	return DeviceList{Serial: []BoardPort{}, Network: []BoardPort{}}
}

// PortListsEqual reports whether two port lists are the same, position by
// position, comparing (Name, IsOpen) pairs. A nil list never equals anything,
// a length mismatch is a difference, and a permutation of the same ports is a
// difference.
func PortListsEqual(a, b []BoardPort) bool {
	if a == nil || b == nil {
		return false
	}

	if len(a) != len(b) {
		return false
	}

	for i := range a {
		if a[i].Name != b[i].Name || a[i].IsOpen != b[i].IsOpen {
			return false
		}
	}

	return true
}

// Equal reports whether both sub-lists match pairwise. See PortListsEqual for
// the per-list rules.
func (l DeviceList) Equal(other DeviceList) bool {
	return PortListsEqual(l.Serial, other.Serial) && PortListsEqual(l.Network, other.Network)
}
