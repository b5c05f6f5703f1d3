// Package formats provides parsers for the mesh file formats the viewer can load.
package formats
