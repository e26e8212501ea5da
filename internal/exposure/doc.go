// Package exposure classifies bracketed real-estate shots into ambient and
// flash frames and groups them into blendable sets.
//
// Classification is an exact string comparison on one EXIF field chosen by a
// Strategy. Grouping walks frames in capture order and opens a new group on
// every flash to ambient transition, so each group is one ambient burst
// followed by its flash burst. Groups missing either side are kept and
// reported as unblendable rather than dropped.
package exposure
