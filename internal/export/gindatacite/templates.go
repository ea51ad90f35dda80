package gindatacite

const authorsHeader = `# Automatically extracted author entries. Please provide affiliation
# and ID for each entry, if possible.
# "affiliation" is a free text string, e.g.,
# affiliation: "Some University, Southern Sea Islands".
# "id" can be any unique ID, including ORCID and ResearcherID.
# For an ORCID-ID use an "ORCID:"-prefix, e.g., "ORCID:0000-0001-2345-6789"
# For a ResearcherID use a "ResearcherID:"-prefix, e.g., "ResearcherID:X-1234-5678"`

const authorsMissing = `# No authors given in 'dataset_description.json', but a
# GIN-Datacite-file (aka. datacite.yml) requires an author-entry.
# Please provide authors according to the following example
# (id and affiliation are not mandatory, but recommended).
# Example below:
#
# authors:
#   - firstname: "GivenName1"
#     lastname: "FamilyName1"
#     affiliation: "Affiliation1"
#     id: "ORCID:0000-0001-2345-6789"
#
#   - firstname: "GivenName2"
#     lastname: "FamilyName2"
#     affiliation: "Affiliation2"
#     id: "ResearcherID:X-1234-5678"
#
#   - firstname: "GivenName3"
#     lastname: "FamilyName3"`

const descriptionMissing = `# A GIN-Datacite-file (aka. datacite.yml) requires a description-entry.
# Please provide a description of the resource. The description
# should provide additional information about the resource, e.g.,
# a brief abstract.
# Example below:

# description: |
#   Example of a description.
#   A description can contain linebreaks
#   but has to maintain indentation.`

const fundingMissing = `# Please consider adding funding information.
# Example below:

# funding:
#   - "DFG, AB1234/5-6"
#   - "EU, EU.12345"`

const keywordsMissing = `# Please provide a list of keywords the resource should be associated
# with. Give as many keywords as possible, to make the resource
# findable.
# Example below:

# keywords:
#   - Neuroscience
#   - Keyword2
#   - Keyword3`

const licenseMissing = `# GIN requires license information. Please provide the license
# name and/or a link to the license.
# Please add also a corresponding LICENSE file to the repository.
# Example below:

# license:
#   name: "Creative Commons CC0 1.0 Public Domain Dedication"
#   url: "https://creativecommons.org/publicdomain/zero/1.0/"`

const referencesMissing = `# Please consider adding references to related publications as
# described below:
# reftype might be: IsSupplementTo, IsDescribedBy, IsReferencedBy.
# Please provide digital identifier (e.g., DOI) if possible.
# Add a prefix to the ID, separated by a colon, to indicate the source.
# Supported sources are: DOI, arXiv, PMID
# In the citation field, please provide the full reference, including title, authors, journal etc.
# Example below:

# references:
#   - id: "doi:10.xxx/zzzz"
#     reftype: "IsSupplementTo"
#     citation: "Citation1"
#   - id: "arxiv:mmmm.nnnn"
#     reftype: "IsSupplementTo"
#     citation: "Citation2"
#   - reftype: "IsSupplementTo"
#     citation: "Citation3"`
