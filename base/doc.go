/*

Package base provides base data structures and functions for the recommender.

The base data structures and functions include:

* Delimited Text Reader

* Identifier Normalization

* Random Generator

* Numeric Computing

*/
package base
