// Package services implements the driving port interfaces.
// Services contain the core business logic: the pure reconciler and the
// sync driver that orchestrates one pass over the driven ports.
//
// Services are pure Go with no external dependencies beyond the ports.
package services
