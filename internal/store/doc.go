// Package store is the Postgres/PostGIS access layer: the edit log and
// checkpoint, the integrator's shadow tables, the live route network
// tables and the spatial queries the classifiers run against them.
//
// All geometry crosses the wire as GeoJSON (ST_AsGeoJSON on the way out,
// ST_GeomFromGeoJSON on the way in) so the geom package stays the single
// codec. Every query that feeds classification filters on
// marked_to_be_deleted so only committed entities take part in topology
// decisions.
package store
