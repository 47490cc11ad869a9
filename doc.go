/*
 * doc.go, part of emprep.
 *
 * Copyright 2012 Raul Mera <rmera{at}chemDOThelsinkiDOTfi>
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

/*Package emprep prepares synthetic cryo-EM movie data for TEM-Simulator.


	**emprep Capabilities**


    Reads/writes RELION STAR particle tables (package star) and groups particles
	by micrograph, checking that the optical parameters of each micrograph are
	uniform.

    Produces dose-fractionated schedules and attenuates density maps in Fourier
	space according to the exposure model of Grant and Grigorieff (package damage),
	writing one MRC map per cumulative dose (package mrc).

    Simulates beam-induced drift of the whole frame as a correlated random walk
	(package drift), with reproducible, serializable random sources (package rng).

    Converts particle coordinates between detector pixels and the simulator's
	physical frame, and between RELION and TEM-Simulator Euler angles (package coord).

    Builds the per-frame TEM-Simulator input decks, coordinate files and geometry
	error files for every micrograph, and writes back the particle table with the
	new micrograph names and drift corrections (package deck).

    Generates synthetic particle grids and flat structural-noise maps.

The root package holds the data model shared by the others: particle records,
micrograph groups, volumes and dose schedules, plus the Error interface that all
errors in the module implement.
*/
package emprep
