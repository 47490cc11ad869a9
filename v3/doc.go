/*
 * doc.go, part of emprep.
 *
 * Copyright 2015 Raul Mera <rmera{at}chemDOThelsinkiDOTfi>
 *
 * This program is free software; you can redistribute it and/or modify
 * it under the terms of the GNU Lesser General Public License as
 * published by the Free Software Foundation; either version 2.1 of the
 * License, or (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU Lesser General
 * Public License along with this program.  If not, see
 * <http://www.gnu.org/licenses/>.
 *
 */

/*Package v3 implements a Matrix type representing a row-major Nx3 matrix.
In emprep, a v3.Matrix holds one row per particle: either its cartesian position (x, y, z)
or its three Euler angles. It is based on gonum's (gonum.org/v1/gonum/mat) Dense type,
with some additional restrictions because of the fixed number of columns, and with a few
functions that are handy when moving whole particle sets between coordinate systems.

*/
package v3
