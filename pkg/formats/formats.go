// Package formats reads and writes the PLY files exchanged with the SLAM
// front end: Gaussian-splat scene models in, meshes and point clouds out.
package formats
