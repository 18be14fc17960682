// Package b3world lifts the smoothed image-plane track into a 3D
// world-frame trajectory using the camera/scene configuration.
//
// World frame: x is distance along the pitch from the stump base plane
// (the ball travels toward x = 0), y is lateral offset from the middle
// stump, z is height above the pitch surface.
package b3world
