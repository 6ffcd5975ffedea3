// Package czone defines the CZone backend's configuration entities, alarm and
// event records, and the parser that maps the backend's JSON payloads onto
// them.
//
// Configuration maps are keyed "{kind}.{instance}" (for example "circuit.12",
// "dcMeter.1", "inverterCharger.258"). Live telemetry ids use the snapshot
// section prefixes instead ("circuit.12", "dc.1", "inverterCharger.258"),
// see DeviceKind.LivePrefix.
package czone
