/*
go-reidtrack is a multi-object tracker associating detections across video
frames by appearance re-identification features, optionally fused with a
Kalman motion model and camera motion compensation.

The tracking engine lives in the tracker package. Appearance features are
produced by an encoder.Encoder or read from MOT style detection files by the
sequence package, which runs sequences frame by frame and writes MOT results.
The reidtrack command wires configuration, logging, metrics, the sqlite audit
log and rendering around the engine.

See cmd/reidtrack for usage.
*/
package reidtrack
