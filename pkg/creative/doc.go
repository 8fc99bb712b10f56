// Package creative generates and ranks candidate solutions. A batch
// that cannot finish within its generation timeout is returned
// partial, ranked over whatever candidates were ready.
package creative
