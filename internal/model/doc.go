// Package model defines the data shared between the stream decoder, the
// snapshot store and its readers.
//
// Conventions:
//   - Field values are a closed set: string, number or boolean (Value).
//   - Numbers keep their wire value exactly (decimal, never float64) and
//     print without trailing fractional zeros.
//   - Snapshot keys are field names, UpdateEvent keys are field identifiers.
package model
